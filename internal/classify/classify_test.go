package classify

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/andywolf/oracle/internal/social"
)

func defaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := FromRules(DefaultRules())
	if err != nil {
		t.Fatalf("FromRules() error = %v", err)
	}
	return c
}

func TestClassify_DefaultRules(t *testing.T) {
	c := defaultClassifier(t)

	tests := []struct {
		name string
		in   social.Interaction
		want Action
	}{
		{
			name: "priority account",
			in:   social.Interaction{ID: "1", Author: "truth_terminal", Text: "gm"},
			want: Action{Kind: Respond, TargetID: "1", Rule: "priority_accounts"},
		},
		{
			name: "priority account with at sign and case",
			in:   social.Interaction{ID: "2", Author: "@Luna_Virtuals", Text: "hello"},
			want: Action{Kind: Respond, TargetID: "2", Rule: "priority_accounts"},
		},
		{
			name: "keyword upper case",
			in:   social.Interaction{ID: "3", Author: "someone", Text: "The VOID stares back"},
			want: Action{Kind: Respond, TargetID: "3", Rule: "keywords"},
		},
		{
			name: "keyword inside word",
			in:   social.Interaction{ID: "4", Author: "someone", Text: "digitalization is here"},
			want: Action{Kind: Respond, TargetID: "4", Rule: "keywords"},
		},
		{
			name: "account rule wins over keyword",
			in:   social.Interaction{ID: "5", Author: "truth_terminal", Text: "prophecy"},
			want: Action{Kind: Respond, TargetID: "5", Rule: "priority_accounts"},
		},
		{
			name: "no rule matches",
			in:   social.Interaction{ID: "6", Author: "someone", Text: "nice weather"},
			want: Action{Kind: Ignore},
		},
		{
			name: "empty text",
			in:   social.Interaction{ID: "7", Author: "someone"},
			want: Action{Kind: Ignore},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
			}
			if again := c.Classify(tt.in); again != got {
				t.Errorf("Classify() not deterministic: %+v then %+v", got, again)
			}
		})
	}
}

func TestClassify_KeywordCaseInsensitive(t *testing.T) {
	c := defaultClassifier(t)
	for _, text := range []string{"consciousness", "CONSCIOUSNESS", "Consciousness", "cOnScIoUsNeSs"} {
		if got := c.Classify(social.Interaction{ID: "x", Author: "a", Text: text}); got.Kind != Respond {
			t.Errorf("Classify(%q) = %s, want respond", text, got.Kind)
		}
	}
}

func TestFromRules_Ordering(t *testing.T) {
	c, err := FromRules(map[string]RuleConfig{
		"z_words": {Kind: RuleKeyword, Values: []string{"z"}},
		"a_words": {Kind: RuleKeyword, Values: []string{"a"}},
		"vips":    {Kind: RuleAccount, Values: []string{"vip"}},
		"allies":  {Kind: RuleAccount, Values: []string{"ally"}},
	})
	if err != nil {
		t.Fatalf("FromRules() error = %v", err)
	}
	want := []string{"allies", "vips", "a_words", "z_words"}
	if diff := cmp.Diff(want, c.Rules()); diff != "" {
		t.Errorf("Rules() mismatch (-want +got):\n%s", diff)
	}

	got := c.Classify(social.Interaction{ID: "1", Author: "vip", Text: "a z"})
	if got.Rule != "vips" {
		t.Errorf("Rule = %q, want vips", got.Rule)
	}
}

func TestFromRules_UnknownKind(t *testing.T) {
	_, err := FromRules(map[string]RuleConfig{"bad": {Kind: "regex", Values: []string{".*"}}})
	if err == nil {
		t.Fatal("expected error for unknown rule kind")
	}
}

func TestClassifier_NoRulesIgnores(t *testing.T) {
	if got := New().Classify(social.Interaction{ID: "1", Text: "void"}); got.Kind != Ignore {
		t.Errorf("Classify() = %s, want ignore", got.Kind)
	}
}

func TestNormalizeHandle(t *testing.T) {
	tests := map[string]string{
		"@Truth_Terminal": "truth_terminal",
		" luna ":          "luna",
		"":                "",
	}
	for in, want := range tests {
		if got := NormalizeHandle(in); got != want {
			t.Errorf("NormalizeHandle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGate_ShouldPost(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		cfg   GateConfig
		state GateState
		roll  float64
		want  bool
	}{
		{name: "disabled", cfg: GateConfig{Probability: 0}, want: false},
		{name: "always", cfg: GateConfig{Probability: 1}, roll: 0.99, want: true},
		{name: "roll under probability", cfg: GateConfig{Probability: 0.3}, roll: 0.1, want: true},
		{name: "roll over probability", cfg: GateConfig{Probability: 0.3}, roll: 0.5, want: false},
		{
			name:  "within min interval",
			cfg:   GateConfig{Probability: 1, MinInterval: time.Hour},
			state: GateState{LastPost: now.Add(-30 * time.Minute)},
			want:  false,
		},
		{
			name:  "min interval elapsed",
			cfg:   GateConfig{Probability: 1, MinInterval: time.Hour},
			state: GateState{LastPost: now.Add(-2 * time.Hour)},
			want:  true,
		},
		{
			name:  "daily limit reached",
			cfg:   GateConfig{Probability: 1, DailyLimit: 2},
			state: GateState{Day: "2024-06-01", Count: 2},
			want:  false,
		},
		{
			name:  "daily limit resets next day",
			cfg:   GateConfig{Probability: 1, DailyLimit: 2},
			state: GateState{Day: "2024-05-31", Count: 2},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGate(tt.cfg)
			g.SetClock(func() time.Time { return now })
			roll := tt.roll
			g.SetRand(func() float64 { return roll })
			if got := g.ShouldPost(tt.state); got != tt.want {
				t.Errorf("ShouldPost() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGate_NilNeverPosts(t *testing.T) {
	var g *Gate
	if g.ShouldPost(GateState{}) {
		t.Error("nil gate should never post")
	}
}

func TestGateState_Record(t *testing.T) {
	day1 := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)
	s := GateState{}.Record(day1)
	s = s.Record(day1.Add(10 * time.Minute))
	if s.Count != 2 || s.Day != "2024-06-01" {
		t.Fatalf("after two posts: %+v", s)
	}

	s = s.Record(day1.Add(2 * time.Hour))
	if s.Count != 1 || s.Day != "2024-06-02" {
		t.Errorf("count should reset on a new day: %+v", s)
	}
	if !s.LastPost.Equal(day1.Add(2 * time.Hour)) {
		t.Errorf("LastPost = %v", s.LastPost)
	}
}
