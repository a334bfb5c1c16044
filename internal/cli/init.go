package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andywolf/oracle/internal/classify"
	"github.com/andywolf/oracle/internal/cli/wizard"
	"github.com/andywolf/oracle/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize oracle configuration",
	Long: `Create a .oracle.yaml in the current directory with sensible defaults
that you can customize.

Examples:
  oracle init --handle digital_oracle
  oracle init --interactive`,
	RunE: initProject,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("handle", "", "Persona account handle")
	initCmd.Flags().String("accounts", "", "Tracked accounts (comma-separated)")
	initCmd.Flags().String("keywords", "", "Reply keywords (comma-separated)")
	initCmd.Flags().Float64("probability", config.DefaultProbability, "Autonomous post probability per pass")
	initCmd.Flags().Bool("dry-run", true, "Log content instead of publishing")
	initCmd.Flags().BoolP("interactive", "i", false, "Review the settings interactively")
	initCmd.Flags().Bool("force", false, "Overwrite existing config")
}

// projectConfig is the subset of the configuration `oracle init` writes.
type projectConfig struct {
	Persona struct {
		Handle string `yaml:"handle"`
	} `yaml:"persona"`
	Sources struct {
		TrackedAccounts []string `yaml:"tracked_accounts"`
		Mentions        bool     `yaml:"mentions"`
	} `yaml:"sources"`
	Relevance struct {
		Rules map[string]classify.RuleConfig `yaml:"rules"`
	} `yaml:"relevance"`
	Autonomous struct {
		Probability float64 `yaml:"probability"`
		MinInterval string  `yaml:"min_interval"`
		DailyLimit  int     `yaml:"daily_limit"`
	} `yaml:"autonomous"`
	Platform struct {
		BearerTokenSecret string `yaml:"bearer_token_secret"`
		DryRun            bool   `yaml:"dry_run"`
	} `yaml:"platform"`
	LLM struct {
		APIKeySecret string `yaml:"api_key_secret"`
	} `yaml:"llm"`
	Monitor struct {
		Interval string `yaml:"interval"`
	} `yaml:"monitor"`
}

func initProject(cmd *cobra.Command, args []string) error {
	configPath := filepath.Join(".", ".oracle.yaml")

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	setup := wizard.Setup{}
	handle, _ := cmd.Flags().GetString("handle")
	accounts, _ := cmd.Flags().GetString("accounts")
	keywords, _ := cmd.Flags().GetString("keywords")
	setup.Handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	setup.TrackedAccounts = wizard.ParseList(accounts)
	setup.Keywords = wizard.ParseList(keywords)
	setup.Probability, _ = cmd.Flags().GetFloat64("probability")
	setup.DryRun, _ = cmd.Flags().GetBool("dry-run")

	if len(setup.TrackedAccounts) == 0 {
		setup.TrackedAccounts = append([]string(nil), config.DefaultTrackedAccounts...)
	}
	if len(setup.Keywords) == 0 {
		setup.Keywords = defaultKeywords()
	}

	if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
		if err := wizard.PromptSetup(&setup); err != nil {
			return err
		}
	}
	if setup.Handle == "" {
		return fmt.Errorf("persona handle is required (use --handle or --interactive)")
	}

	if err := writeProjectConfig(configPath, newProjectConfig(setup)); err != nil {
		return err
	}

	printNextSteps(cmd.OutOrStdout(), configPath)
	return nil
}

// defaultKeywords returns the values of the built-in keyword rule.
func defaultKeywords() []string {
	for _, rule := range classify.DefaultRules() {
		if rule.Kind == classify.RuleKeyword {
			return append([]string(nil), rule.Values...)
		}
	}
	return nil
}

func newProjectConfig(s wizard.Setup) projectConfig {
	cfg := projectConfig{}
	cfg.Persona.Handle = s.Handle
	cfg.Sources.TrackedAccounts = s.TrackedAccounts
	cfg.Sources.Mentions = true

	cfg.Relevance.Rules = map[string]classify.RuleConfig{
		"priority_accounts": {Kind: classify.RuleAccount, Values: s.TrackedAccounts},
	}
	if len(s.Keywords) > 0 {
		cfg.Relevance.Rules["keywords"] = classify.RuleConfig{Kind: classify.RuleKeyword, Values: s.Keywords}
	}

	cfg.Autonomous.Probability = s.Probability
	cfg.Autonomous.MinInterval = config.DefaultMinInterval.String()
	cfg.Autonomous.DailyLimit = config.DefaultDailyLimit

	cfg.Platform.BearerTokenSecret = fmt.Sprintf("projects/YOUR_PROJECT/secrets/%s-bearer-token", s.Handle)
	cfg.Platform.DryRun = s.DryRun
	cfg.LLM.APIKeySecret = "projects/YOUR_PROJECT/secrets/gemini-api-key"
	cfg.Monitor.Interval = config.DefaultInterval.String()
	return cfg
}

func writeProjectConfig(path string, cfg projectConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# Oracle Configuration
# Secrets may also come from the environment:
#   ORACLE_PLATFORM_BEARER_TOKEN, ORACLE_LLM_API_KEY

`

	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func printNextSteps(w io.Writer, path string) {
	fmt.Fprintf(w, "Created %s\n\n", path)
	fmt.Fprintln(w, "Next steps:")
	fmt.Fprintln(w, "  1. Point the *_secret paths at your Secret Manager secrets, or export the tokens")
	fmt.Fprintln(w, "  2. Review the relevance rules and tracked accounts")
	fmt.Fprintln(w, "  3. Run 'oracle chat' to meet the persona")
	fmt.Fprintln(w, "  4. Run 'oracle monitor --once' for a first pass (dry run until you set dry_run: false)")
}
