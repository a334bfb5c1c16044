package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/andywolf/oracle/internal/cli/wizard"
	"github.com/andywolf/oracle/internal/generate"
)

const quitCommand = "/quit"

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the persona interactively",
	Long: `Start an interactive conversation with the persona.

Free-form messages get a conversational answer. Slash-commands select a
content template:
  /style        style analysis
  /trend        trend forecast
  /philosophy   fashion philosophy
  /quit         end the conversation

Trends come from the configured static list unless --live is set.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().Bool("live", false, "Use live platform trends and recent posts")
}

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99")).
			Padding(0, 1)

	welcomeStyle = panelStyle.BorderForeground(lipgloss.Color("63"))
	errorStyle   = panelStyle.BorderForeground(lipgloss.Color("196"))
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

// responder is the part of the dispatcher the chat loop uses.
type responder interface {
	Command(ctx context.Context, input string) (generate.Content, error)
}

// chatSession is one interactive conversation.
type chatSession struct {
	name     string
	bio      string
	commands []string
	d        responder
	read     func() (string, error)
	out      io.Writer
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	live, _ := cmd.Flags().GetBool("live")
	provider, err := a.contextProvider(ctx, live)
	if err != nil {
		return err
	}
	d, err := a.dispatcher(ctx, provider)
	if err != nil {
		return err
	}

	s := &chatSession{
		name:     a.persona.Name,
		bio:      strings.TrimSpace(a.persona.Bio),
		commands: commandNames(cfg.Templates.Commands),
		d:        d,
		read:     func() (string, error) { return wizard.PromptMessage("You") },
		out:      cmd.OutOrStdout(),
	}
	return s.run(ctx)
}

// run prints the welcome panel and answers until /quit, an aborted prompt
// or cancellation. Generation failures are shown and the session goes on.
func (s *chatSession) run(ctx context.Context) error {
	fmt.Fprintln(s.out, welcomePanel(s.name, s.bio, s.commands))

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		input, err := s.read()
		if err != nil {
			if errors.Is(err, wizard.ErrAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.EqualFold(input, quitCommand) {
			return nil
		}

		fmt.Fprintf(s.out, "You: %s\n", input)
		content, err := s.d.Command(ctx, input)
		if err != nil {
			fmt.Fprintln(s.out, errorPanel(err))
			continue
		}
		fmt.Fprintln(s.out, responsePanel(s.name, content.Content))
	}
}

// commandNames returns the slash-commands, sorted, followed by /quit.
func commandNames(commands map[string]string) []string {
	names := make([]string, 0, len(commands)+1)
	for name := range commands {
		names = append(names, "/"+name)
	}
	sort.Strings(names)
	return append(names, quitCommand)
}

func welcomePanel(name, bio string, commands []string) string {
	var b strings.Builder
	b.WriteString(boldStyle.Render(fmt.Sprintf("Welcome to a conversation with %s!", name)))
	if bio != "" {
		b.WriteString("\n")
		b.WriteString(bio)
	}
	b.WriteString("\n\nType your message or use these commands:")
	for _, c := range commands {
		b.WriteString("\n")
		b.WriteString(c)
	}
	return welcomeStyle.Render(b.String())
}

func responsePanel(name, content string) string {
	return panelStyle.Render(boldStyle.Render(name) + ": " + content)
}

func errorPanel(err error) string {
	msg := "The oracle is silent right now"
	if generate.IsMalformed(err) {
		msg = "The oracle's vision was unreadable"
	}
	return errorStyle.Render(fmt.Sprintf("%s (%v)", msg, err))
}

// Ensure the dispatcher satisfies responder
var _ responder = (*generate.Dispatcher)(nil)
