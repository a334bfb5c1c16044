package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/oracle/internal/classify"
	"github.com/andywolf/oracle/internal/config"
	"github.com/andywolf/oracle/internal/monitor"
	"github.com/andywolf/oracle/internal/security"
	"github.com/andywolf/oracle/internal/social"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the platform and respond in persona",
	Long: `Run monitoring passes on an interval. Each pass fetches mentions and the
posts of tracked accounts, replies to the relevant ones, and may publish
one autonomous post. State is saved after every pass, so a restarted
monitor resumes where it stopped.

Examples:
  oracle monitor                 # Run until interrupted
  oracle monitor --once          # Run a single pass and exit
  oracle monitor --dry-run       # Log content instead of publishing`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().Bool("once", false, "Run a single pass and exit")
	monitorCmd.Flags().Bool("dry-run", false, "Log generated content instead of publishing")
	monitorCmd.Flags().Duration("interval", 0, "Time between passes (default 5m)")
	monitorCmd.Flags().String("handle", "", "Persona account handle")

	_ = viper.BindPFlag("platform.dry_run", monitorCmd.Flags().Lookup("dry-run"))
	_ = viper.BindPFlag("monitor.interval", monitorCmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("persona.handle", monitorCmd.Flags().Lookup("handle"))
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt signal, finishing current pass...")
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateForMonitor(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Printf("Warning: shutdown: %v", cerr)
		}
	}()

	m, err := a.buildMonitor(ctx)
	if err != nil {
		return err
	}
	store, err := a.stateStore(ctx)
	if err != nil {
		return err
	}

	once, _ := cmd.Flags().GetBool("once")
	if once {
		report, err := m.RunOnce(ctx, store)
		if err != nil {
			return err
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	}

	a.logger.Printf("Monitoring %d sources every %s as @%s", len(m.Sources()), cfg.Monitor.Interval, a.persona.Handle)
	return m.Run(ctx, store, cfg.Monitor.Interval)
}

// buildMonitor wires the monitor's collaborators from configuration.
func (a *app) buildMonitor(ctx context.Context) (*monitor.Monitor, error) {
	classifier, err := classify.FromRules(a.cfg.Relevance.Rules)
	if err != nil {
		return nil, fmt.Errorf("invalid relevance rules: %w", err)
	}

	client, err := a.platform(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}
	recorder, err := a.activityLog()
	if err != nil {
		return nil, err
	}
	provider, err := a.contextProvider(ctx, true)
	if err != nil {
		return nil, err
	}
	dispatcher, err := a.dispatcher(ctx, provider)
	if err != nil {
		return nil, err
	}

	return monitor.New(monitor.Config{
		Sources:    buildSources(a.cfg, client, a.persona.Handle),
		Classifier: classifier,
		Generator:  dispatcher,
		Publisher:  publisher,
		Gate:       buildGate(a.cfg.Autonomous),
		Throttle:   security.NewReplyThrottle(a.cfg.Throttle.RepliesPerAuthor, a.cfg.Throttle.Window),
		Recorder:   recorder,
		Tracer:     a.tracerFor(ctx),

		Logger:      a.componentLogger("monitor"),
		CloudLogger: a.passLogger(),

		Handle:    a.persona.Handle,
		Persona:   a.personaLabel(),
		SessionID: a.sessionID,

		InitialLookback: a.cfg.Monitor.InitialLookback,
	})
}

// sourceFactory is the part of *social.Client the source list needs.
type sourceFactory interface {
	AccountSource(username string) social.Source
	MentionSource(handle string) social.Source
}

// buildSources returns the mention source (when enabled) followed by one
// source per tracked account, skipping blanks and repeats.
func buildSources(cfg *config.Config, f sourceFactory, handle string) []social.Source {
	var sources []social.Source
	if cfg.MentionsEnabled() && handle != "" {
		sources = append(sources, f.MentionSource(handle))
	}

	seen := make(map[string]bool)
	for _, account := range cfg.Sources.TrackedAccounts {
		key := classify.NormalizeHandle(account)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		sources = append(sources, f.AccountSource(strings.TrimPrefix(strings.TrimSpace(account), "@")))
	}
	return sources
}

// buildGate returns nil when autonomous posting is disabled.
func buildGate(cfg config.AutonomousConfig) monitor.Gate {
	if cfg.Disabled || cfg.Probability <= 0 {
		return nil
	}
	return classify.NewGate(classify.GateConfig{
		Probability: cfg.Probability,
		MinInterval: cfg.MinInterval,
		DailyLimit:  cfg.DailyLimit,
	})
}

// printReport writes a human summary of one pass.
func printReport(w io.Writer, r *monitor.Report) {
	fmt.Fprintf(w, "Pass %s %s in %s\n", r.PassID, r.Status(), r.Duration.Round(time.Millisecond))

	for _, src := range r.Sources {
		if src.Err != nil {
			fmt.Fprintf(w, "  %-20s failed: %v\n", src.Source, src.Err)
			continue
		}
		fmt.Fprintf(w, "  %-20s %d interactions\n", src.Source, len(src.Interactions))
	}

	fmt.Fprintf(w, "Decisions: %d evaluated, %d to respond, %d duplicates, %d throttled\n",
		len(r.Decisions), r.Responded(), r.Duplicates, r.Throttled)
	for _, reply := range r.Replies {
		fmt.Fprintf(w, "  replied to %s (%s): %s\n", reply.InteractionID, reply.PostID, reply.Content)
	}
	if r.Autonomous != nil {
		fmt.Fprintf(w, "  posted %s: %s\n", r.Autonomous.PostID, r.Autonomous.Content)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  failure: %s\n", f.Error())
	}
}
