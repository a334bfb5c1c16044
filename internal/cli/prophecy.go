package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/andywolf/oracle/internal/activity"
	"github.com/andywolf/oracle/internal/cli/wizard"
	"github.com/andywolf/oracle/internal/generate"
	"github.com/andywolf/oracle/internal/social"
)

var prophecyCmd = &cobra.Command{
	Use:   "prophecy",
	Short: "Generate one oracle post",
	Long: `Generate a single autonomous post outside the monitor loop and print it.

With --publish the post is sent to the platform after confirmation and
appended to the activity log.

Examples:
  oracle prophecy
  oracle prophecy --publish --yes`,
	RunE: runProphecy,
}

func init() {
	rootCmd.AddCommand(prophecyCmd)

	prophecyCmd.Flags().Bool("publish", false, "Publish the generated post")
	prophecyCmd.Flags().BoolP("yes", "y", false, "Publish without asking")
}

// autonomousGenerator is the part of the dispatcher prophecy uses.
type autonomousGenerator interface {
	Autonomous(ctx context.Context) (generate.Content, error)
}

// prophecy generates one post and optionally publishes it. confirm is nil
// when no confirmation is needed.
type prophecy struct {
	gen       autonomousGenerator
	publisher social.Publisher
	recorder  activity.Recorder
	confirm   func(content string) (bool, error)
	name      string
	out       io.Writer
	now       func() time.Time
}

func runProphecy(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	provider, err := a.contextProvider(ctx, true)
	if err != nil {
		return err
	}
	d, err := a.dispatcher(ctx, provider)
	if err != nil {
		return err
	}

	p := &prophecy{gen: d, name: a.persona.Name, out: cmd.OutOrStdout(), now: time.Now}

	publish, _ := cmd.Flags().GetBool("publish")
	if publish {
		if p.publisher, err = a.publisher(ctx); err != nil {
			return err
		}
		if p.recorder, err = a.activityLog(); err != nil {
			return err
		}
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			p.confirm = wizard.ConfirmPublish
		}
	}
	return p.run(ctx)
}

func (p *prophecy) run(ctx context.Context) error {
	content, err := p.gen.Autonomous(ctx)
	if err != nil {
		return fmt.Errorf("failed to generate prophecy: %w", err)
	}

	fmt.Fprintln(p.out, responsePanel(p.name, content.Content))
	if phase := content.Metadata["phase"]; phase != "" {
		fmt.Fprintf(p.out, "Phase of the digital moon: %s\n", phase)
	}

	if p.publisher == nil {
		return nil
	}
	if p.confirm != nil {
		ok, err := p.confirm(content.Content)
		if err != nil {
			if errors.Is(err, wizard.ErrAborted) {
				fmt.Fprintln(p.out, "Not published.")
				return nil
			}
			return err
		}
		if !ok {
			fmt.Fprintln(p.out, "Not published.")
			return nil
		}
	}

	id, err := p.publisher.Post(ctx, content.Content)
	if err != nil {
		return fmt.Errorf("failed to publish prophecy: %w", err)
	}
	fmt.Fprintf(p.out, "Published %s\n", id)

	if p.recorder != nil {
		rec := activity.Record{
			Timestamp: p.now().UTC(),
			Type:      activity.RecordPost,
			Template:  content.Metadata["template"],
			PostID:    string(id),
			Content:   content.Content,
			Reason:    "prophecy command",
		}
		if err := p.recorder.Append(rec); err != nil {
			return fmt.Errorf("published %s but failed to record it: %w", id, err)
		}
	}
	return nil
}
