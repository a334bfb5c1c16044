package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/oracle/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "oracle",
	Short: "Oracle - a persona-driven social agent",
	Long: `Oracle watches a social platform for interactions, decides which ones
deserve an answer, and replies in the voice of its persona. Between
interactions it occasionally publishes an autonomous prophecy.

Example:
  oracle monitor --once
  oracle chat`,
	SilenceUsage: true,
}

// envAliases maps config keys to conventional variable names accepted in
// addition to the ORACLE_ prefixed ones.
var envAliases = map[string][]string{
	"platform.bearer_token": {"TWITTER_BEARER_TOKEN"},
	"llm.api_key":           {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"langfuse.public_key":   {"LANGFUSE_PUBLIC_KEY"},
	"langfuse.secret_key":   {"LANGFUSE_SECRET_KEY"},
	"langfuse.base_url":     {"LANGFUSE_BASE_URL"},
	"state.database_url":    {"DATABASE_URL"},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .oracle.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	rootCmd.PersistentFlags().String("persona-dir", "", "directory overriding the built-in persona")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("persona.dir", rootCmd.PersistentFlags().Lookup("persona-dir"))
}

func initConfig() {
	// A missing .env is normal
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".oracle")
	}

	bindEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintln(os.Stderr, "Error reading config file:", err)
	}
}

// bindEnv enables ORACLE_SECTION_KEY variables and the conventional aliases.
// Keys only reach Unmarshal when viper knows them, so secrets are bound
// explicitly.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix("ORACLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, aliases := range envAliases {
		names := append([]string{"ORACLE_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, aliases...)
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
}
