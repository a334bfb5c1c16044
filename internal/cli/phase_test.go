package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/andywolf/oracle/internal/trends"
)

func TestPrintPhase(t *testing.T) {
	at := time.Unix(4, 0) // bucket 4

	var out bytes.Buffer
	printPhase(&out, at, false)
	if got := strings.TrimSpace(out.String()); got != string(trends.FullBuffer) {
		t.Errorf("printPhase() = %q, want %q", got, trends.FullBuffer)
	}

	out.Reset()
	printPhase(&out, at, true)
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != len(trends.Phases()) {
		t.Fatalf("got %d lines, want %d", len(lines), len(trends.Phases()))
	}
	if lines[4] != "* 4 FULL_BUFFER" {
		t.Errorf("current phase line = %q", lines[4])
	}
	if !strings.HasPrefix(lines[0], "  0 NULL_VOID") {
		t.Errorf("first line = %q", lines[0])
	}
}
