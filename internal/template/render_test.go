package template

import (
	"reflect"
	"testing"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		vars   map[string]string
		want   string
	}{
		{
			name:   "empty prompt",
			prompt: "",
			vars:   map[string]string{"phase": "NULL_VOID"},
			want:   "",
		},
		{
			name:   "no variables",
			prompt: "Speak as the oracle.",
			vars:   nil,
			want:   "Speak as the oracle.",
		},
		{
			name:   "single substitution",
			prompt: "The digital moon is in {{phase}}.",
			vars:   map[string]string{"phase": "PACKET_STORM"},
			want:   "The digital moon is in PACKET_STORM.",
		},
		{
			name:   "multiple substitutions",
			prompt: "@{{author}} said: {{input}}",
			vars:   map[string]string{"author": "truth_terminal", "input": "the void calls"},
			want:   "@truth_terminal said: the void calls",
		},
		{
			name:   "unknown variable preserved",
			prompt: "Trends: {{trends}} / {{unknown}}",
			vars:   map[string]string{"trends": "Digital Wear"},
			want:   "Trends: Digital Wear / {{unknown}}",
		},
		{
			name:   "same variable repeated",
			prompt: "{{phase}}... {{phase}}.",
			vars:   map[string]string{"phase": "VOID_RETURN"},
			want:   "VOID_RETURN... VOID_RETURN.",
		},
		{
			name:   "invalid placeholder untouched",
			prompt: "{{ phase }} and {{1phase}}",
			vars:   map[string]string{"phase": "x", "1phase": "y"},
			want:   "{{ phase }} and {{1phase}}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.prompt, tt.vars); got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("{{phase}} {{trends}} {{phase}} {{ input }}")
	want := []string{"phase", "trends"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders() = %v, want %v", got, want)
	}

	if got := Placeholders("no placeholders"); got != nil {
		t.Errorf("Placeholders() = %v, want nil", got)
	}
}

func TestUnresolved(t *testing.T) {
	got := Unresolved("{{phase}} {{trends}} {{input}}", map[string]string{"phase": "x"})
	want := []string{"input", "trends"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Unresolved() = %v, want %v", got, want)
	}
}

func TestMerge(t *testing.T) {
	tests := []struct {
		name    string
		persona map[string]string
		call    map[string]string
		want    map[string]string
	}{
		{name: "both nil", want: nil},
		{name: "both empty", persona: map[string]string{}, call: map[string]string{}, want: nil},
		{
			name:    "no collision",
			persona: map[string]string{"persona": "Oracle"},
			call:    map[string]string{"phase": "NULL_VOID"},
			want:    map[string]string{"persona": "Oracle", "phase": "NULL_VOID"},
		},
		{
			name:    "call wins",
			persona: map[string]string{"persona": "Oracle"},
			call:    map[string]string{"persona": "Zara"},
			want:    map[string]string{"persona": "Zara"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Merge(tt.persona, tt.call); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Merge() = %v, want %v", got, tt.want)
			}
		})
	}
}
