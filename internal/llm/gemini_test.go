package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/andywolf/oracle/internal/generate"
	"github.com/andywolf/oracle/internal/observability"
	"github.com/andywolf/oracle/internal/persona"
)

type fakeModels struct {
	// responses and errs are consumed per call, keyed by model name.
	responses map[string]*genai.GenerateContentResponse
	errs      map[string]error

	calls   []string
	prompts []string
	config  *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls = append(f.calls, model)
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompts = append(f.prompts, contents[0].Parts[0].Text)
	}
	if err := f.errs[model]; err != nil {
		return nil, err
	}
	return f.responses[model], nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     12,
			CandidatesTokenCount: 3,
		},
	}
}

func newTestBackend(t *testing.T, fm *fakeModels, models ...string) *Backend {
	t.Helper()
	p, err := persona.Load()
	if err != nil {
		t.Fatalf("persona.Load() error = %v", err)
	}
	b := newBackend(fm, p, Config{Models: models, Temperature: 0.9})
	b.SetLogger(log.New(io.Discard, "", 0))
	return b
}

func TestGenerate_RendersTemplate(t *testing.T) {
	fm := &fakeModels{responses: map[string]*genai.GenerateContentResponse{
		"m1": textResponse("  the buffer overflows with light  "),
	}}
	b := newTestBackend(t, fm, "m1")

	got, err := b.Generate(context.Background(), "oracle_post", generate.Context{
		generate.KeyPhase:       "FULL_BUFFER",
		generate.KeyTrends:      []string{"Digital Wear"},
		generate.KeyRecentPosts: []string{},
		generate.KeyTimestamp:   "2024-06-01T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "the buffer overflows with light" {
		t.Errorf("Generate() = %q", got)
	}

	prompt := fm.prompts[0]
	for _, want := range []string{"FULL_BUFFER", "Digital Wear", "none", "2024-06-01T12:00:00Z"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "{{") {
		t.Errorf("prompt has unresolved placeholders:\n%s", prompt)
	}

	if fm.config.SystemInstruction == nil {
		t.Fatal("expected a system instruction")
	}
	if sys := fm.config.SystemInstruction.Parts[0].Text; !strings.Contains(sys, "You are Oracle") {
		t.Errorf("system instruction not rendered with persona name: %q", sys)
	}
	if fm.config.Temperature == nil || *fm.config.Temperature != 0.9 {
		t.Errorf("temperature not applied: %v", fm.config.Temperature)
	}
}

func TestGenerate_UnknownTemplate(t *testing.T) {
	fm := &fakeModels{}
	b := newTestBackend(t, fm, "m1")

	_, err := b.Generate(context.Background(), "haiku", generate.Context{})
	if !errors.Is(err, generate.ErrUnknownTemplate) {
		t.Errorf("error = %v, want ErrUnknownTemplate", err)
	}
	if len(fm.calls) != 0 {
		t.Error("backend should not be called for an unknown template")
	}
}

func TestGenerate_ModelFallback(t *testing.T) {
	fm := &fakeModels{
		errs:      map[string]error{"primary": genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED", Message: "quota exceeded"}},
		responses: map[string]*genai.GenerateContentResponse{"secondary": textResponse("ok")},
	}
	b := newTestBackend(t, fm, "primary", "secondary")

	got, err := b.Generate(context.Background(), "chat", generate.Context{generate.KeyInput: "hi"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("Generate() = %q", got)
	}
	if strings.Join(fm.calls, ",") != "primary,secondary" {
		t.Errorf("calls = %v", fm.calls)
	}
}

func TestGenerate_FallbackOnlyForAPIStatus(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCalls string
	}{
		{"unknown model", genai.APIError{Code: 404, Status: "NOT_FOUND"}, "primary,secondary"},
		{"wrapped quota error", fmt.Errorf("call failed: %w", genai.APIError{Code: 429}), "primary,secondary"},
		{"server error", genai.APIError{Code: 500, Status: "INTERNAL"}, "primary"},
		{"plain error mentioning 404", errors.New("dial tcp: lookup 404.example: not found"), "primary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fm := &fakeModels{
				errs:      map[string]error{"primary": tt.err},
				responses: map[string]*genai.GenerateContentResponse{"secondary": textResponse("ok")},
			}
			b := newTestBackend(t, fm, "primary", "secondary")

			_, _ = b.Generate(context.Background(), "chat", generate.Context{generate.KeyInput: "hi"})
			if got := strings.Join(fm.calls, ","); got != tt.wantCalls {
				t.Errorf("calls = %s, want %s", got, tt.wantCalls)
			}
		})
	}
}

func TestGenerate_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		fm   *fakeModels
		want error
	}{
		{
			name: "all models rate limited",
			fm:   &fakeModels{errs: map[string]error{"m1": &genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"}}},
			want: generate.ErrGenerationUnavailable,
		},
		{
			name: "hard failure",
			fm:   &fakeModels{errs: map[string]error{"m1": errors.New("connection refused")}},
			want: generate.ErrGenerationUnavailable,
		},
		{
			name: "empty text",
			fm:   &fakeModels{responses: map[string]*genai.GenerateContentResponse{"m1": textResponse("   ")}},
			want: generate.ErrGenerationMalformed,
		},
		{
			name: "no candidates",
			fm:   &fakeModels{responses: map[string]*genai.GenerateContentResponse{"m1": {}}},
			want: generate.ErrGenerationMalformed,
		},
		{
			name: "nil response",
			fm:   &fakeModels{},
			want: generate.ErrGenerationMalformed,
		},
		{
			name: "blocked prompt",
			fm: &fakeModels{responses: map[string]*genai.GenerateContentResponse{"m1": {
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "SAFETY"},
			}}},
			want: generate.ErrGenerationMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t, tt.fm, "m1")
			_, err := b.Generate(context.Background(), "chat", generate.Context{})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

type recordingTracer struct {
	observability.NoOpTracer
	gens []observability.GenerationInput
}

func (r *recordingTracer) RecordGeneration(_ observability.SpanContext, gen observability.GenerationInput) {
	r.gens = append(r.gens, gen)
}

func TestGenerate_RecordsGenerationOnActiveSpan(t *testing.T) {
	fm := &fakeModels{responses: map[string]*genai.GenerateContentResponse{"m1": textResponse("omens")}}
	b := newTestBackend(t, fm, "m1")
	tracer := &recordingTracer{}
	b.SetTracer(tracer)

	// No span: nothing recorded.
	if _, err := b.Generate(context.Background(), "chat", generate.Context{}); err != nil {
		t.Fatal(err)
	}
	if len(tracer.gens) != 0 {
		t.Fatalf("recorded %d generations without a span", len(tracer.gens))
	}

	ctx := observability.ContextWithSpan(context.Background(), observability.SpanContext{SpanID: "s", TraceID: "t"})
	if _, err := b.Generate(ctx, "chat", generate.Context{}); err != nil {
		t.Fatal(err)
	}
	if len(tracer.gens) != 1 {
		t.Fatalf("recorded %d generations, want 1", len(tracer.gens))
	}
	gen := tracer.gens[0]
	if gen.Name != "chat" || gen.Model != "m1" || gen.Output != "omens" || gen.Status != "completed" {
		t.Errorf("unexpected generation %+v", gen)
	}
	if gen.InputTokens != 12 || gen.OutputTokens != 3 {
		t.Errorf("usage = %d/%d", gen.InputTokens, gen.OutputTokens)
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	p, _ := persona.Load()
	if _, err := New(context.Background(), "", p, Config{}); err == nil {
		t.Error("expected error for empty API key")
	}
}
