// Package persona loads the persona definition: its identity, system prompt
// and the named content templates the dispatcher selects from.
package persona

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed manifest.yaml templates/*.md
var embedded embed.FS

// Built-in template names.
const (
	TemplateChat              = "chat"
	TemplateStyleAnalysis     = "style_analysis"
	TemplateTrendForecast     = "trend_forecast"
	TemplateFashionPhilosophy = "fashion_philosophy"
	TemplateOraclePost        = "oracle_post"
)

// Manifest is the YAML description of a persona.
type Manifest struct {
	Name      string          `yaml:"name"`
	Handle    string          `yaml:"handle"`
	Bio       []string        `yaml:"bio"`
	System    string          `yaml:"system"`
	Templates []TemplateEntry `yaml:"templates"`
}

// TemplateEntry names a template and the file that holds its prompt.
type TemplateEntry struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	File        string `yaml:"file"`
}

// Template is a named content archetype.
type Template struct {
	Name        string
	Description string
	Prompt      string
}

// Persona is read-only once loaded.
type Persona struct {
	Name      string
	Handle    string
	Bio       string
	System    string
	templates map[string]Template
}

// Load returns the built-in persona.
func Load() (*Persona, error) {
	return load(embedded, "templates")
}

// LoadDir loads a persona from dir, which must contain manifest.yaml. Template
// files missing from dir fall back to the built-in copies. An empty dir
// returns the built-in persona.
func LoadDir(dir string) (*Persona, error) {
	if dir == "" {
		return Load()
	}
	if _, err := os.Stat(filepath.Join(dir, "manifest.yaml")); err != nil {
		return nil, fmt.Errorf("persona directory %s: %w", dir, err)
	}
	return load(overlayFS{primary: os.DirFS(dir), fallback: embedded, fallbackDir: "templates"}, ".")
}

// overlayFS reads from primary, falling back to files under fallbackDir in
// fallback for anything primary does not have.
type overlayFS struct {
	primary     fs.FS
	fallback    fs.FS
	fallbackDir string
}

func (o overlayFS) ReadFile(name string) ([]byte, error) {
	data, err := fs.ReadFile(o.primary, name)
	if err == nil || !errors.Is(err, fs.ErrNotExist) {
		return data, err
	}
	if name == "manifest.yaml" {
		return nil, err
	}
	return fs.ReadFile(o.fallback, path.Join(o.fallbackDir, path.Base(name)))
}

func (o overlayFS) Open(name string) (fs.File, error) {
	return o.primary.Open(name)
}

func load(fsys fs.FS, templateDir string) (*Persona, error) {
	raw, err := fs.ReadFile(fsys, "manifest.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read persona manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse persona manifest: %w", err)
	}
	if strings.TrimSpace(m.Name) == "" {
		return nil, fmt.Errorf("persona manifest has no name")
	}

	readTemplate := func(file string) (string, error) {
		data, err := fs.ReadFile(fsys, path.Join(templateDir, file))
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	p := &Persona{
		Name:      m.Name,
		Handle:    strings.TrimPrefix(m.Handle, "@"),
		Bio:       strings.Join(m.Bio, ""),
		templates: make(map[string]Template, len(m.Templates)),
	}

	if m.System != "" {
		if p.System, err = readTemplate(m.System); err != nil {
			return nil, fmt.Errorf("system prompt %q: %w", m.System, err)
		}
	}

	for _, entry := range m.Templates {
		if entry.Name == "" {
			return nil, fmt.Errorf("template entry for file %q has no name", entry.File)
		}
		if _, dup := p.templates[entry.Name]; dup {
			return nil, fmt.Errorf("duplicate template %q", entry.Name)
		}
		prompt, err := readTemplate(entry.File)
		if err != nil {
			return nil, fmt.Errorf("template file %q not found for template %q: %w", entry.File, entry.Name, err)
		}
		p.templates[entry.Name] = Template{
			Name:        entry.Name,
			Description: entry.Description,
			Prompt:      prompt,
		}
	}

	return p, nil
}

// Template looks up a template by name.
func (p *Persona) Template(name string) (Template, bool) {
	t, ok := p.templates[name]
	return t, ok
}

// TemplateNames returns the known template names, sorted.
func (p *Persona) TemplateNames() []string {
	names := make([]string, 0, len(p.templates))
	for name := range p.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Require checks that every named template exists.
func (p *Persona) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := p.templates[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("persona %s is missing templates: %s", p.Name, strings.Join(missing, ", "))
	}
	return nil
}

// WithHandle returns a copy of p using handle. An empty handle keeps the
// current one.
func (p *Persona) WithHandle(handle string) *Persona {
	cp := *p
	if h := strings.TrimPrefix(strings.TrimSpace(handle), "@"); h != "" {
		cp.Handle = h
	}
	return &cp
}
