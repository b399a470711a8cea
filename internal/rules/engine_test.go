package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeRules(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "substitutions.rules")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write rules file: %v", err)
	}
	return path
}

func TestEngineAppliesReplacementPairsInOrder(t *testing.T) {
	t.Parallel()

	pairs := []Replacement{
		{Find: "aa", Replace: "b"},
		{Find: "a", Replace: "x"},
	}
	engine, err := NewEngine("", pairs, 30)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	output, err := engine.Apply("aa")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "b" {
		t.Fatalf("expected first pair to win, got %q", output)
	}
}

func TestEngineReplacementPairsAreCaseSensitive(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine("", []Replacement{{Find: "PR", Replace: "pull request"}}, 30)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	output, err := engine.Apply("the pr and the PR")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "the pr and the pull request" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineReplacementsRunBeforeFileRules(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "bar => baz\n")
	engine, err := NewEngine(path, []Replacement{{Find: "foo", Replace: "bar"}}, 30)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	output, err := engine.Apply("foo")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "baz" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineMissingFileUsesPairsOnly(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "does-not-exist.rules")
	engine, err := NewEngine(path, []Replacement{{Find: "x", Replace: "y"}}, 30)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	output, err := engine.Apply("x")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "y" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineLiteralAndRegexRules(t *testing.T) {
	t.Parallel()

	path := writeRules(t, `
# literal
pull request => PR
# regex with default case-insensitive
s/\bdeep\s*gram\b/Deepgram/g
`)

	engine, err := NewEngine(path, nil, 30)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	output, err := engine.Apply("deep gram pull request")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "Deepgram PR" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineIteratesUntilStable(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "a => b\nb => c\n")
	engine, err := NewEngine(path, nil, 5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	output, err := engine.Apply("a")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "c" {
		t.Fatalf("expected c, got %q", output)
	}
}

func TestEngineLiteralRuleStartingWithS(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "solid complaint => SOLID-compliant\n")
	engine, err := NewEngine(path, nil, 30)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	output, err := engine.Apply("solid complaint plan")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "SOLID-compliant plan" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestEngineSupportsParserExtension(t *testing.T) {
	t.Parallel()

	path := writeRules(t, "prefix:Hello=>Howdy\n")
	parsers := append([]RuleParser{prefixRuleParser{}}, defaultRuleParsers()...)
	engine, err := NewEngineWithParsers(path, nil, 5, parsers)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	output, err := engine.Apply("hello world")
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if output != "Howdy world" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestRegexRuleWithoutGlobalReplacesFirstMatchOnly(t *testing.T) {
	t.Parallel()

	r, err := parseRegexRule(`s/foo/bar/`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	output, changed := r.Apply("foo foo")
	if !changed {
		t.Fatalf("expected changed=true")
	}
	if output != "bar foo" {
		t.Fatalf("unexpected output: %q", output)
	}
}

func TestParseRegexRuleUnsupportedFlag(t *testing.T) {
	t.Parallel()

	_, err := parseRegexRule(`s/foo/bar/x`)
	if err == nil {
		t.Fatalf("expected unsupported flag error")
	}
}

func TestParseRulesUnsupportedLine(t *testing.T) {
	t.Parallel()

	_, err := parseRules("not-a-rule", defaultRuleParsers())
	if err == nil {
		t.Fatalf("expected unsupported rule format error")
	}
}

type prefixRuleParser struct{}

func (prefixRuleParser) CanParse(line string) bool {
	return strings.HasPrefix(line, "prefix:")
}

func (prefixRuleParser) Parse(line string) (rule, error) {
	payload := strings.TrimPrefix(line, "prefix:")
	parts := strings.SplitN(payload, "=>", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid prefix rule")
	}
	return parseLiteralRule(parts[0] + " => " + parts[1])
}
