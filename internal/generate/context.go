package generate

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Context keys set by the dispatcher.
const (
	KeyTrends        = "trends"
	KeyRecentPosts   = "recent_posts"
	KeyPhase         = "phase"
	KeyInput         = "input"
	KeyTimestamp     = "timestamp"
	KeyInputType     = "input_type"
	KeyPersona       = "persona"
	KeyAuthor        = "author"
	KeyInteractionID = "interaction_id"
	KeyCommand       = "command"
)

// Input types reported under KeyInputType.
const (
	InputQuestion  = "question"
	InputCommand   = "command"
	InputStatement = "statement"
	InputMention   = "mention"
	InputNone      = "none"
)

// emptyList is what an empty list renders as inside a prompt.
const emptyList = "none"

// Context is the per-call generation context. A new Context is built for
// every call and never reused.
type Context map[string]interface{}

// Strings flattens the context into template variables. Lists are joined
// with "; ", times are formatted as RFC3339.
func (c Context) Strings() map[string]string {
	out := make(map[string]string, len(c))
	for k, v := range c {
		out[k] = stringify(v)
	}
	return out
}

// Keys returns the context keys, sorted.
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringify(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		if len(val) == 0 {
			return emptyList
		}
		return strings.Join(val, "; ")
	case time.Time:
		return val.Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// DetectInputType classifies free-form input as a question, command or
// statement.
func DetectInputType(input string) string {
	switch {
	case strings.Contains(input, "?"):
		return InputQuestion
	case strings.Contains(input, "/"):
		return InputCommand
	default:
		return InputStatement
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
