// Package classify decides what the persona does with each interaction and
// whether an autonomous post is due.
package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andywolf/oracle/internal/social"
)

// ActionKind is the decision taken for an interaction.
type ActionKind string

const (
	Ignore         ActionKind = "ignore"
	Respond        ActionKind = "respond"
	AutonomousPost ActionKind = "autonomous_post"
)

// Action is the classifier's verdict. TargetID is set for Respond; Rule names
// the rule that matched, empty for Ignore.
type Action struct {
	Kind     ActionKind
	TargetID string
	Rule     string
}

// RuleKind selects how a rule's values are matched.
type RuleKind string

const (
	RuleAccount RuleKind = "account"
	RuleKeyword RuleKind = "keyword"
)

// RuleConfig is the configuration form of a relevance rule.
type RuleConfig struct {
	Kind   RuleKind `mapstructure:"kind" yaml:"kind"`
	Values []string `mapstructure:"values" yaml:"values"`
}

// DefaultRules reproduces the stock relevance policy: two priority accounts
// and four keywords.
func DefaultRules() map[string]RuleConfig {
	return map[string]RuleConfig{
		"priority_accounts": {
			Kind:   RuleAccount,
			Values: []string{"truth_terminal", "luna_virtuals"},
		},
		"keywords": {
			Kind:   RuleKeyword,
			Values: []string{"consciousness", "void", "digital", "prophecy"},
		},
	}
}

// Matcher is one relevance rule.
type Matcher interface {
	Name() string
	Match(in social.Interaction) bool
}

// AccountMatcher matches interactions authored by any of a set of handles.
type AccountMatcher struct {
	name     string
	accounts map[string]struct{}
}

// NewAccountMatcher builds an account rule. Handles compare case-insensitively
// with any leading "@" removed.
func NewAccountMatcher(name string, handles []string) *AccountMatcher {
	m := &AccountMatcher{name: name, accounts: make(map[string]struct{}, len(handles))}
	for _, h := range handles {
		if h = NormalizeHandle(h); h != "" {
			m.accounts[h] = struct{}{}
		}
	}
	return m
}

func (m *AccountMatcher) Name() string { return m.name }

func (m *AccountMatcher) Match(in social.Interaction) bool {
	_, ok := m.accounts[NormalizeHandle(in.Author)]
	return ok
}

// KeywordMatcher matches interactions whose text contains any keyword.
type KeywordMatcher struct {
	name     string
	keywords []string
}

// NewKeywordMatcher builds a case-insensitive substring rule.
func NewKeywordMatcher(name string, keywords []string) *KeywordMatcher {
	m := &KeywordMatcher{name: name}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			m.keywords = append(m.keywords, k)
		}
	}
	return m
}

func (m *KeywordMatcher) Name() string { return m.name }

func (m *KeywordMatcher) Match(in social.Interaction) bool {
	text := strings.ToLower(in.Text)
	for _, k := range m.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// NormalizeHandle lowercases a handle and strips a leading "@".
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// Classifier evaluates rules in order and stops at the first match.
type Classifier struct {
	matchers []Matcher
}

// New creates a classifier over an explicit ordered rule list.
func New(matchers ...Matcher) *Classifier {
	return &Classifier{matchers: matchers}
}

// FromRules builds a classifier from configuration. Account rules come
// before keyword rules; within a kind, rules are ordered by name.
func FromRules(rules map[string]RuleConfig) (*Classifier, error) {
	names := make([]string, 0, len(rules))
	for name, rc := range rules {
		switch rc.Kind {
		case RuleAccount, RuleKeyword:
		default:
			return nil, fmt.Errorf("rule %q: unknown kind %q (expected %q or %q)", name, rc.Kind, RuleAccount, RuleKeyword)
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ki, kj := rules[names[i]].Kind, rules[names[j]].Kind
		if ki != kj {
			return ki == RuleAccount
		}
		return names[i] < names[j]
	})

	matchers := make([]Matcher, 0, len(names))
	for _, name := range names {
		rc := rules[name]
		if rc.Kind == RuleAccount {
			matchers = append(matchers, NewAccountMatcher(name, rc.Values))
		} else {
			matchers = append(matchers, NewKeywordMatcher(name, rc.Values))
		}
	}
	return New(matchers...), nil
}

// Rules returns the rule names in evaluation order.
func (c *Classifier) Rules() []string {
	names := make([]string, len(c.matchers))
	for i, m := range c.matchers {
		names[i] = m.Name()
	}
	return names
}

// Classify returns exactly one action for in. It is pure: the same
// interaction always yields the same action.
func (c *Classifier) Classify(in social.Interaction) Action {
	for _, m := range c.matchers {
		if m.Match(in) {
			return Action{Kind: Respond, TargetID: in.ID, Rule: m.Name()}
		}
	}
	return Action{Kind: Ignore}
}
