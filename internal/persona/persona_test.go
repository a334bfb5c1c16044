package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_BuiltIn(t *testing.T) {
	p, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Name != "Oracle" || p.Handle != "digital_oracle" {
		t.Errorf("unexpected identity %q @%q", p.Name, p.Handle)
	}
	if p.Bio == "" {
		t.Error("Bio should not be empty")
	}
	if !strings.Contains(p.System, "{{persona}}") {
		t.Errorf("System prompt missing persona placeholder: %q", p.System)
	}

	builtins := []string{TemplateChat, TemplateStyleAnalysis, TemplateTrendForecast, TemplateFashionPhilosophy, TemplateOraclePost}
	if err := p.Require(builtins...); err != nil {
		t.Fatalf("Require() error = %v", err)
	}
	for _, name := range builtins {
		tmpl, _ := p.Template(name)
		if strings.TrimSpace(tmpl.Prompt) == "" {
			t.Errorf("template %s has empty prompt", name)
		}
		if tmpl.Description == "" {
			t.Errorf("template %s has no description", name)
		}
	}

	oracle, _ := p.Template(TemplateOraclePost)
	for _, v := range []string{"{{phase}}", "{{trends}}", "{{recent_posts}}"} {
		if !strings.Contains(oracle.Prompt, v) {
			t.Errorf("oracle_post prompt missing %s", v)
		}
	}
}

func TestTemplateNames_Sorted(t *testing.T) {
	p, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := strings.Join(p.TemplateNames(), ",")
	want := "chat,fashion_philosophy,oracle_post,style_analysis,trend_forecast"
	if got != want {
		t.Errorf("TemplateNames() = %s, want %s", got, want)
	}
}

func TestRequire_Missing(t *testing.T) {
	p, _ := Load()
	err := p.Require(TemplateChat, "haiku", "limerick")
	if err == nil {
		t.Fatal("expected error for missing templates")
	}
	if !strings.Contains(err.Error(), "haiku, limerick") {
		t.Errorf("error = %v", err)
	}
}

func TestLoadDir_OverridesAndFallback(t *testing.T) {
	dir := t.TempDir()
	manifest := `name: Zara
handle: "@zara_style"
bio: ["Fashion from the future."]
system: system.md
templates:
  - name: chat
    description: custom chat
    file: chat.md
  - name: oracle_post
    description: built-in prophecy
    file: oracle_post.md
`
	if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "chat.md"), []byte("Hi {{input}}"), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if p.Name != "Zara" || p.Handle != "zara_style" {
		t.Errorf("identity = %q @%q", p.Name, p.Handle)
	}
	chat, ok := p.Template(TemplateChat)
	if !ok || chat.Prompt != "Hi {{input}}" {
		t.Errorf("chat template = %+v", chat)
	}
	oracle, ok := p.Template(TemplateOraclePost)
	if !ok || !strings.Contains(oracle.Prompt, "{{phase}}") {
		t.Errorf("oracle_post should fall back to built-in, got %+v", oracle)
	}
	if p.System == "" {
		t.Error("system prompt should fall back to built-in")
	}
	if _, ok := p.Template(TemplateStyleAnalysis); ok {
		t.Error("templates not listed in the manifest should not be loaded")
	}
}

func TestLoadDir_Errors(t *testing.T) {
	t.Run("missing manifest", func(t *testing.T) {
		if _, err := LoadDir(t.TempDir()); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("unknown template file", func(t *testing.T) {
		dir := t.TempDir()
		manifest := "name: X\ntemplates:\n  - name: odd\n    file: does_not_exist.md\n"
		if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(manifest), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadDir(dir); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("no name", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte("handle: x\n"), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadDir(dir); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("empty dir uses built-in", func(t *testing.T) {
		p, err := LoadDir("")
		if err != nil || p.Name != "Oracle" {
			t.Errorf("LoadDir(\"\") = %v, %v", p, err)
		}
	})
}

func TestWithHandle(t *testing.T) {
	p, _ := Load()
	q := p.WithHandle("@other")
	if q.Handle != "other" || p.Handle != "digital_oracle" {
		t.Errorf("WithHandle mutated or failed: p=%q q=%q", p.Handle, q.Handle)
	}
	if p.WithHandle("  ").Handle != "digital_oracle" {
		t.Error("empty handle should keep current")
	}
}
