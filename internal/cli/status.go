package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/andywolf/oracle/internal/activity"
	"github.com/andywolf/oracle/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitor state and recent activity",
	Long: `Show the persisted monitor state and a summary of the activity log.

Examples:
  oracle status                # State and activity summary
  oracle status --recent 10    # Also list the 10 most recent publishes
  oracle status --ping         # Also check the Langfuse connection`,
	Args: cobra.NoArgs,
	RunE: checkStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().Int("recent", 5, "Number of recent publishes to list")
	statusCmd.Flags().Bool("ping", false, "Check the Langfuse connection")
}

func checkStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Persona: %s (@%s)\n\n", a.persona.Name, a.persona.Handle)

	store, err := a.stateStore(ctx)
	if err != nil {
		return err
	}
	st, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	printState(out, st, time.Now())

	recent, _ := cmd.Flags().GetInt("recent")
	records, err := activity.ReadRecords(cfg.Activity.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		fmt.Fprintln(out, "\nNo activity recorded yet.")
	case err != nil:
		return fmt.Errorf("failed to read activity log: %w", err)
	default:
		fmt.Fprintln(out)
		printActivity(out, records, recent)
	}

	if ping, _ := cmd.Flags().GetBool("ping"); ping {
		fmt.Fprintln(out)
		lt := a.langfuse(ctx)
		if lt == nil {
			fmt.Fprintln(out, "Langfuse: not configured")
			return nil
		}
		defer func() { _ = lt.Stop(ctx) }()
		if err := lt.Ping(ctx); err != nil {
			return fmt.Errorf("langfuse ping failed: %w", err)
		}
		fmt.Fprintf(out, "Langfuse: reachable at %s\n", lt.BaseURL())
	}
	return nil
}

func printState(w io.Writer, st state.State, now time.Time) {
	if st.IsZero() {
		fmt.Fprintln(w, "State: no passes yet")
		return
	}

	fmt.Fprintf(w, "Passes:    %d\n", st.Passes)
	fmt.Fprintf(w, "Watermark: %s (%s ago)\n", st.Watermark.UTC().Format(time.RFC3339), formatAge(now.Sub(st.Watermark)))
	if !st.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated:   %s\n", st.UpdatedAt.UTC().Format(time.RFC3339))
	}

	if len(st.Cursors) > 0 {
		sources := make([]string, 0, len(st.Cursors))
		for src := range st.Cursors {
			sources = append(sources, src)
		}
		sort.Strings(sources)

		fmt.Fprintf(w, "\n%-20s %s\n", "SOURCE", "CURSOR")
		fmt.Fprintln(w, strings.Repeat("-", 46))
		for _, src := range sources {
			fmt.Fprintf(w, "%-20s %s\n", src, st.Cursors[src].UTC().Format(time.RFC3339))
		}
	}

	if st.LastAutonomousPost.IsZero() {
		fmt.Fprintln(w, "\nAutonomous: none posted")
	} else {
		fmt.Fprintf(w, "\nAutonomous: %d on %s, last %s ago\n",
			st.AutonomousCount, st.AutonomousDay, formatAge(now.Sub(st.LastAutonomousPost)))
	}
}

func printActivity(w io.Writer, records []activity.Record, recent int) {
	counts := make(map[activity.RecordType]int)
	for _, rec := range records {
		counts[rec.Type]++
	}
	fmt.Fprintf(w, "Activity: %d passes, %d replies, %d posts, %d skipped, %d failures\n",
		counts[activity.RecordPass], counts[activity.RecordReply], counts[activity.RecordPost],
		counts[activity.RecordSkip], counts[activity.RecordFailure])

	if recent <= 0 {
		return
	}
	published := activity.FilterByType(records, activity.RecordReply, activity.RecordPost)
	if len(published) == 0 {
		return
	}
	if len(published) > recent {
		published = published[len(published)-recent:]
	}

	fmt.Fprintln(w, "\nRecent:")
	for i := len(published) - 1; i >= 0; i-- {
		rec := published[i]
		target := ""
		if rec.Type == activity.RecordReply {
			target = fmt.Sprintf(" -> @%s", rec.Author)
		}
		fmt.Fprintf(w, "[%s] %s%s: %s\n", rec.Timestamp.UTC().Format("2006-01-02 15:04"), rec.Type, target, truncate(rec.Content, 80))
	}
}

func formatAge(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
