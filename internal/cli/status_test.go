package cli

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/andywolf/oracle/internal/activity"
	"github.com/andywolf/oracle/internal/state"
)

func TestPrintState(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("zero state", func(t *testing.T) {
		var out bytes.Buffer
		printState(&out, state.State{}, now)
		if !strings.Contains(out.String(), "no passes yet") {
			t.Errorf("got %q", out.String())
		}
	})

	t.Run("populated", func(t *testing.T) {
		st := state.State{
			Watermark: now.Add(-90 * time.Minute),
			Cursors: map[string]time.Time{
				"truth_terminal": now.Add(-90 * time.Minute),
				"mentions":       now.Add(-2 * time.Hour),
			},
			LastAutonomousPost: now.Add(-3 * time.Hour),
			AutonomousDay:      "2024-06-01",
			AutonomousCount:    2,
			Passes:             7,
		}
		var out bytes.Buffer
		printState(&out, st, now)
		got := out.String()

		for _, want := range []string{"Passes:    7", "(1h30m ago)", "2 on 2024-06-01, last 3h0m ago"} {
			if !strings.Contains(got, want) {
				t.Errorf("output missing %q:\n%s", want, got)
			}
		}
		if strings.Index(got, "mentions") > strings.Index(got, "truth_terminal") {
			t.Errorf("cursors should be sorted by source:\n%s", got)
		}
	})
}

func TestPrintActivity(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var records []activity.Record
	for i := 0; i < 4; i++ {
		records = append(records, activity.Record{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Type:      activity.RecordReply,
			Author:    "truth_terminal",
			Content:   fmt.Sprintf("reply %d", i),
		})
	}
	records = append(records,
		activity.Record{Timestamp: base.Add(5 * time.Minute), Type: activity.RecordPost, Content: "prophecy"},
		activity.Record{Type: activity.RecordSkip},
		activity.Record{Type: activity.RecordFailure},
		activity.Record{Type: activity.RecordPass},
	)

	var out bytes.Buffer
	printActivity(&out, records, 2)
	got := out.String()

	if !strings.Contains(got, "1 passes, 4 replies, 1 posts, 1 skipped, 1 failures") {
		t.Errorf("summary wrong:\n%s", got)
	}
	if !strings.Contains(got, "post: prophecy") || !strings.Contains(got, "reply -> @truth_terminal: reply 3") {
		t.Errorf("recent list wrong:\n%s", got)
	}
	if strings.Contains(got, "reply 2") {
		t.Errorf("recent list should hold only 2 entries:\n%s", got)
	}
	if strings.Index(got, "prophecy") > strings.Index(got, "reply 3") {
		t.Errorf("recent list should be newest first:\n%s", got)
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{-time.Second, "0s"},
		{42 * time.Second, "42s"},
		{5 * time.Minute, "5m"},
		{90 * time.Minute, "1h30m"},
		{50 * time.Hour, "2d2h"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.d); got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 80); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("line one\nline two", 80); got != "line one line two" {
		t.Errorf("newlines not flattened: %q", got)
	}
	long := strings.Repeat("void ", 30)
	got := truncate(long, 20)
	if len([]rune(got)) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate() = %q", got)
	}
}
