// Package llm implements the generation backend over the Gemini API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/andywolf/oracle/internal/generate"
	"github.com/andywolf/oracle/internal/observability"
	"github.com/andywolf/oracle/internal/persona"
	"github.com/andywolf/oracle/internal/template"
)

// DefaultModels is tried in order; later models are used when earlier ones
// are rate limited or missing.
var DefaultModels = []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"}

// DefaultTimeout bounds one generation call.
const DefaultTimeout = 30 * time.Second

// Config holds generation parameters.
type Config struct {
	Models          []string
	Temperature     float32
	MaxOutputTokens int32
	Timeout         time.Duration
}

// contentGenerator is the subset of *genai.Models the backend needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Backend renders persona templates and sends them to Gemini.
type Backend struct {
	models  contentGenerator
	persona *persona.Persona
	cfg     Config
	tracer  observability.Tracer
	logger  *log.Logger
}

// Ensure Backend implements generate.Backend
var _ generate.Backend = (*Backend)(nil)

// New creates a Gemini-backed generator authenticated with apiKey.
func New(ctx context.Context, apiKey string, p *persona.Persona, cfg Config) (*Backend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return newBackend(client.Models, p, cfg), nil
}

func newBackend(models contentGenerator, p *persona.Persona, cfg Config) *Backend {
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Backend{
		models:  models,
		persona: p,
		cfg:     cfg,
		tracer:  observability.NoOpTracer{},
		logger:  log.New(os.Stdout, "[llm] ", log.LstdFlags),
	}
}

// SetTracer sets the tracer that receives generation records.
func (b *Backend) SetTracer(t observability.Tracer) {
	if t != nil {
		b.tracer = t
	}
}

// SetLogger replaces the logger.
func (b *Backend) SetLogger(l *log.Logger) {
	if l != nil {
		b.logger = l
	}
}

// Generate renders the named template with c and returns the model's text.
// Failures wrap generate.ErrGenerationUnavailable or
// generate.ErrGenerationMalformed.
func (b *Backend) Generate(ctx context.Context, name string, c generate.Context) (string, error) {
	tmpl, ok := b.persona.Template(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", generate.ErrUnknownTemplate, name)
	}

	vars := template.Merge(map[string]string{generate.KeyPersona: b.persona.Name}, c.Strings())
	if vars[generate.KeyPersona] == "" {
		vars[generate.KeyPersona] = b.persona.Name
	}
	prompt := template.Render(tmpl.Prompt, vars)
	if missing := template.Unresolved(tmpl.Prompt, vars); len(missing) > 0 {
		b.logger.Printf("Warning: template %s has unresolved placeholders: %s", name, strings.Join(missing, ", "))
	}

	config := &genai.GenerateContentConfig{}
	if b.persona.System != "" {
		config.SystemInstruction = genai.NewContentFromText(template.Render(b.persona.System, vars), genai.RoleUser)
	}
	if b.cfg.Temperature > 0 {
		config.Temperature = genai.Ptr(b.cfg.Temperature)
	}
	if b.cfg.MaxOutputTokens > 0 {
		config.MaxOutputTokens = b.cfg.MaxOutputTokens
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	var lastErr error
	for _, model := range b.cfg.Models {
		start := time.Now()
		resp, err := b.models.GenerateContent(ctx, model, genai.Text(prompt), config)
		elapsed := time.Since(start).Milliseconds()

		if err != nil {
			b.record(ctx, name, model, prompt, "", nil, "error", elapsed)
			if ctx.Err() != nil {
				return "", fmt.Errorf("%w: %v", generate.ErrGenerationUnavailable, ctx.Err())
			}
			if isFallbackError(err) {
				b.logger.Printf("Warning: model %s unavailable, trying next: %v", model, err)
				lastErr = err
				continue
			}
			return "", fmt.Errorf("%w: %s: %v", generate.ErrGenerationUnavailable, model, err)
		}

		text, err := extractText(resp)
		if err != nil {
			b.record(ctx, name, model, prompt, "", resp, "error", elapsed)
			return "", err
		}
		b.record(ctx, name, model, prompt, text, resp, "completed", elapsed)
		return text, nil
	}

	return "", fmt.Errorf("%w: all models failed: %v", generate.ErrGenerationUnavailable, lastErr)
}

// isFallbackError reports whether err means "try the next model" rather than
// a hard failure: the API answered 429 (quota) or 404 (unknown model).
func isFallbackError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fallbackCode(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return fallbackCode(apiErrPtr.Code)
	}
	return false
}

func fallbackCode(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusNotFound
}

// extractText joins the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generate.ErrGenerationMalformed)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", generate.ErrGenerationMalformed, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no candidates", generate.ErrGenerationMalformed)
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		reason := string(resp.Candidates[0].FinishReason)
		return "", fmt.Errorf("%w: empty output (finish reason %q)", generate.ErrGenerationMalformed, reason)
	}
	return text, nil
}

func (b *Backend) record(ctx context.Context, name, model, prompt, output string, resp *genai.GenerateContentResponse, status string, durationMs int64) {
	span, ok := observability.SpanFromContext(ctx)
	if !ok {
		return
	}
	gen := observability.GenerationInput{
		Name:       name,
		Model:      model,
		Input:      prompt,
		Output:     output,
		Status:     status,
		DurationMs: durationMs,
	}
	if resp != nil && resp.UsageMetadata != nil {
		gen.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		gen.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	b.tracer.RecordGeneration(span, gen)
}
