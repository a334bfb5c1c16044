// Package generate maps decided actions and interactive commands onto
// persona templates and invokes the generation backend.
package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andywolf/oracle/internal/persona"
	"github.com/andywolf/oracle/internal/social"
	"github.com/andywolf/oracle/internal/trends"
)

// RejectionMessage is returned for an unrecognized slash-command.
const RejectionMessage = "Invalid command. Try /style, /trend, or /philosophy"

// Backend turns a template name and context into text.
type Backend interface {
	Generate(ctx context.Context, template string, c Context) (string, error)
}

// Content is the dispatcher's result.
type Content struct {
	Content  string
	Metadata map[string]string
}

// Config selects the templates used for each kind of generation.
type Config struct {
	PersonaName        string
	ReplyTemplate      string
	AutonomousTemplate string
	ChatTemplate       string
	// Commands maps a slash-command name (without "/") to a template.
	Commands map[string]string
}

// DefaultCommands is the interactive command table.
func DefaultCommands() map[string]string {
	return map[string]string{
		"style":      persona.TemplateStyleAnalysis,
		"trend":      persona.TemplateTrendForecast,
		"philosophy": persona.TemplateFashionPhilosophy,
	}
}

// Dispatcher builds a fresh context per call and invokes the backend. It
// never retries and never invents content when the backend fails.
type Dispatcher struct {
	backend  Backend
	provider trends.Provider
	cfg      Config
	now      func() time.Time
}

// NewDispatcher creates a dispatcher. Empty template names in cfg fall back
// to the built-in persona templates.
func NewDispatcher(backend Backend, provider trends.Provider, cfg Config) *Dispatcher {
	if cfg.ReplyTemplate == "" {
		cfg.ReplyTemplate = persona.TemplateChat
	}
	if cfg.AutonomousTemplate == "" {
		cfg.AutonomousTemplate = persona.TemplateOraclePost
	}
	if cfg.ChatTemplate == "" {
		cfg.ChatTemplate = persona.TemplateChat
	}
	if len(cfg.Commands) == 0 {
		cfg.Commands = DefaultCommands()
	}
	if provider == nil {
		provider = trends.Static{}
	}
	return &Dispatcher{backend: backend, provider: provider, cfg: cfg, now: time.Now}
}

// SetClock replaces the clock (for testing).
func (d *Dispatcher) SetClock(fn func() time.Time) {
	d.now = fn
}

// Templates returns every template name the dispatcher may request.
func (d *Dispatcher) Templates() []string {
	seen := map[string]bool{}
	var names []string
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	add(d.cfg.ReplyTemplate)
	add(d.cfg.AutonomousTemplate)
	add(d.cfg.ChatTemplate)
	for _, name := range sortedKeys(d.cfg.Commands) {
		add(d.cfg.Commands[name])
	}
	return names
}

// Respond generates a reply to an interaction.
func (d *Dispatcher) Respond(ctx context.Context, in social.Interaction) (Content, error) {
	c := d.baseContext(ctx)
	c[KeyInput] = in.Text
	c[KeyAuthor] = in.Author
	c[KeyInteractionID] = in.ID
	c[KeyInputType] = InputMention

	content, err := d.run(ctx, d.cfg.ReplyTemplate, c)
	if err != nil {
		return Content{}, err
	}
	content.Metadata["in_reply_to"] = in.ID
	return content, nil
}

// Autonomous generates a standalone post.
func (d *Dispatcher) Autonomous(ctx context.Context) (Content, error) {
	c := d.baseContext(ctx)
	c[KeyInput] = ""
	c[KeyInputType] = InputNone
	return d.run(ctx, d.cfg.AutonomousTemplate, c)
}

// Command handles interactive input. A slash-command is looked up in the
// command table before any backend call; an unknown one yields
// RejectionMessage. Anything else is conversational input.
func (d *Dispatcher) Command(ctx context.Context, input string) (Content, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return d.Chat(ctx, input)
	}

	name, rest := splitCommand(input)
	tmpl, ok := d.cfg.Commands[name]
	if !ok {
		return Content{
			Content:  RejectionMessage,
			Metadata: map[string]string{"command": name, "rejected": "true"},
		}, nil
	}

	c := d.baseContext(ctx)
	c[KeyInput] = rest
	c[KeyCommand] = name
	c[KeyInputType] = DetectInputType(input)
	content, err := d.run(ctx, tmpl, c)
	if err != nil {
		return Content{}, err
	}
	content.Metadata["command"] = name
	return content, nil
}

// Chat generates a conversational answer to free-form input.
func (d *Dispatcher) Chat(ctx context.Context, input string) (Content, error) {
	c := d.baseContext(ctx)
	c[KeyInput] = input
	c[KeyInputType] = DetectInputType(input)
	return d.run(ctx, d.cfg.ChatTemplate, c)
}

// IsCommand reports whether input names a known slash-command.
func (d *Dispatcher) IsCommand(input string) bool {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return false
	}
	name, _ := splitCommand(input)
	_, ok := d.cfg.Commands[name]
	return ok
}

func (d *Dispatcher) baseContext(ctx context.Context) Context {
	now := d.now()
	return Context{
		KeyTrends:      d.provider.CurrentTrends(ctx),
		KeyRecentPosts: d.provider.RecentPosts(ctx),
		KeyPhase:       trends.ComputePhase(now),
		KeyTimestamp:   now,
		KeyPersona:     d.cfg.PersonaName,
	}
}

func (d *Dispatcher) run(ctx context.Context, tmpl string, c Context) (Content, error) {
	text, err := d.backend.Generate(ctx, tmpl, c)
	if err != nil {
		return Content{}, &GenerationFailedError{Template: tmpl, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Content{}, &GenerationFailedError{
			Template: tmpl,
			Err:      fmt.Errorf("%w: empty output", ErrGenerationMalformed),
		}
	}

	meta := map[string]string{
		"template": tmpl,
		"phase":    stringify(c[KeyPhase]),
	}
	if it, ok := c[KeyInputType].(string); ok {
		meta["input_type"] = it
	}
	return Content{Content: text, Metadata: meta}, nil
}

// splitCommand splits "/name rest" into a lowercased name and the rest.
func splitCommand(input string) (string, string) {
	body := strings.TrimPrefix(input, "/")
	name, rest, _ := strings.Cut(body, " ")
	return strings.ToLower(name), strings.TrimSpace(rest)
}
