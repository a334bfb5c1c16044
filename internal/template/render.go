// Package template renders persona prompt templates that use Mustache-style
// {{variable}} placeholders.
package template

import (
	"regexp"
	"sort"
)

// variablePattern matches {{variable}} placeholders and captures the name.
var variablePattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Render substitutes {{variable}} placeholders in prompt with values from
// vars. Placeholders without a value are left as-is.
func Render(prompt string, vars map[string]string) string {
	if len(vars) == 0 {
		return prompt
	}

	return variablePattern.ReplaceAllStringFunc(prompt, func(match string) string {
		name := variablePattern.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Placeholders returns the distinct variable names referenced by prompt,
// sorted.
func Placeholders(prompt string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range variablePattern.FindAllStringSubmatch(prompt, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.Strings(names)
	return names
}

// Unresolved returns the placeholders in prompt that have no value in vars.
func Unresolved(prompt string, vars map[string]string) []string {
	var missing []string
	for _, name := range Placeholders(prompt) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Merge merges persona-level variables with per-call variables. Per-call
// values win on name collision.
func Merge(persona, call map[string]string) map[string]string {
	if len(persona) == 0 && len(call) == 0 {
		return nil
	}

	result := make(map[string]string, len(persona)+len(call))
	for k, v := range persona {
		result[k] = v
	}
	for k, v := range call {
		result[k] = v
	}
	return result
}
