package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestBuildString(t *testing.T) {
	tests := []struct {
		name string
		b    Build
		want string
	}{
		{
			name: "long sha truncated",
			b:    Build{Version: "v0.3.0", Commit: "abc123456789abcdef", Date: "2026-01-15T10:30:00Z", Go: "go1.24.0"},
			want: "oracle v0.3.0 (commit: abc1234, built: 2026-01-15T10:30:00Z, go: go1.24.0)",
		},
		{
			name: "short sha kept",
			b:    Build{Version: "dev", Commit: "abc", Date: "unknown", Go: "go1.24.0"},
			want: "oracle dev (commit: abc, built: unknown, go: go1.24.0)",
		},
		{
			name: "modified tree marked",
			b:    Build{Version: "dev", Commit: "abc123456789", Date: "unknown", Go: "go1.24.0", Modified: true},
			want: "oracle dev (commit: abc1234-dirty, built: unknown, go: go1.24.0)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCurrent_LdflagsWin(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, BuildDate
	defer func() { Version, Commit, BuildDate = origVersion, origCommit, origDate }()

	Version, Commit, BuildDate = "v1.0.0", "deadbeefcafe", "2026-10-01T00:00:00Z"
	b := Current()
	if b.Version != "v1.0.0" || b.Commit != "deadbeefcafe" || b.Date != "2026-10-01T00:00:00Z" {
		t.Errorf("Current() = %+v, want ldflags values", b)
	}
	if b.Go != runtime.Version() {
		t.Errorf("Go = %q, want %q", b.Go, runtime.Version())
	}
	if got := UserAgent(); got != "oracle/v1.0.0" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestFull(t *testing.T) {
	result := Full()

	for _, want := range []string{"oracle ", "Commit:", "Built:", "Go version:", "OS/Arch:", runtime.GOOS + "/" + runtime.GOARCH} {
		if !strings.Contains(result, want) {
			t.Errorf("Full() should contain %q, got %q", want, result)
		}
	}
	if lines := strings.Split(result, "\n"); len(lines) < 5 {
		t.Errorf("Full() should have at least 5 lines, got %d: %q", len(lines), result)
	}
}

func TestInfoMatchesCurrent(t *testing.T) {
	if Info() != Current().String() {
		t.Errorf("Info() = %q, Current().String() = %q", Info(), Current().String())
	}
}
