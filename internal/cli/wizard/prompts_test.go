package wizard

import (
	"errors"
	"testing"

	"github.com/charmbracelet/huh"
	"github.com/google/go-cmp/cmp"
)

func TestParseList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "whitespace only",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "single item",
			input:    "truth_terminal",
			expected: []string{"truth_terminal"},
		},
		{
			name:     "multiple items with whitespace",
			input:    "  truth_terminal ,  luna_virtuals  ",
			expected: []string{"truth_terminal", "luna_virtuals"},
		},
		{
			name:     "handles lose their @",
			input:    "@truth_terminal, @MirraMrr",
			expected: []string{"truth_terminal", "MirraMrr"},
		},
		{
			name:     "empty items between commas",
			input:    "void,, digital,",
			expected: []string{"void", "digital"},
		},
		{
			name:     "lone @ is dropped",
			input:    "@, void",
			expected: []string{"void"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.expected, ParseList(tt.input)); diff != "" {
				t.Errorf("ParseList(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestValidateProbability(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"0", false},
		{"0.1", false},
		{" 1 ", false},
		{"1.5", true},
		{"-0.1", true},
		{"often", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			err := validateProbability(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateProbability(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestPromptError(t *testing.T) {
	if err := promptError(huh.ErrUserAborted); !errors.Is(err, ErrAborted) {
		t.Errorf("promptError(ErrUserAborted) = %v, want ErrAborted", err)
	}

	other := errors.New("tty gone")
	err := promptError(other)
	if errors.Is(err, ErrAborted) || !errors.Is(err, other) {
		t.Errorf("promptError(other) = %v", err)
	}
}
