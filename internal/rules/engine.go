// Package rules applies deterministic text substitutions to finished
// transcripts, after any model post-processing and before paste delivery.
package rules

import (
	"strings"
)

// Replacement is an ordered literal substitution from the user's settings.
// Replacements match case-sensitively and run before any rules loaded from
// the rules file.
type Replacement struct {
	Find    string
	Replace string
}

// Engine applies configured replacements and file rules until the text stops
// changing or the iteration limit is reached.
type Engine struct {
	rules     []rule
	loopLimit int
}

// NewEngine compiles the replacement pairs and, when path names an existing
// file, the rules it contains. A missing or empty path is not an error; the
// engine then degrades to the configured replacements alone.
func NewEngine(path string, pairs []Replacement, loopLimit int) (*Engine, error) {
	return NewEngineWithParsers(path, pairs, loopLimit, defaultRuleParsers())
}

// NewEngineWithParsers allows rules-file parser extension without engine
// changes.
func NewEngineWithParsers(path string, pairs []Replacement, loopLimit int, parsers []RuleParser) (*Engine, error) {
	if loopLimit <= 0 {
		loopLimit = 30
	}
	if len(parsers) == 0 {
		parsers = defaultRuleParsers()
	}

	compiled := make([]rule, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Find == "" {
			continue
		}
		compiled = append(compiled, pairRule{find: pair.Find, replace: pair.Replace})
	}

	fileRules, err := loadRules(path, parsers)
	if err != nil {
		return nil, err
	}
	compiled = append(compiled, fileRules...)

	return &Engine{rules: compiled, loopLimit: loopLimit}, nil
}

// Apply transforms text deterministically. The same input always yields the
// same output.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < e.loopLimit; i++ {
		changed := false
		for _, r := range e.rules {
			next, ruleChanged := r.Apply(result)
			if ruleChanged {
				result = next
				changed = true
			}
		}
		if !changed {
			return result, nil
		}
	}

	return result, nil
}

// pairRule is a settings replacement: plain case-sensitive substring
// substitution of every occurrence.
type pairRule struct {
	find    string
	replace string
}

func (r pairRule) Apply(input string) (string, bool) {
	output := strings.ReplaceAll(input, r.find, r.replace)
	return output, output != input
}
