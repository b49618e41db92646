// Copyright 2024-2026 Aiku AI

package textfilter

import (
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Rule syntax:
//   - "text"            literal substring, removed from the message
//   - "/pattern/"       regular expression, matches removed
//   - "a->b"            replacement, split on the first "->"; the left side
//     may itself be a /pattern/
//
// Patterns are compiled case-insensitive and multiline. Invalid patterns
// are logged and skipped.
const (
	regexDelim = "/"
	arrowToken = "->"
)

// builtinRewrites are applied before any user-configured rule and cannot
// be removed by ClearRules. They strip known spam blocks and unwrap
// markdown that hides links.
var builtinRewrites = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile(`(?im)➪\s*Code:\s*\(\s*TarekTeam\s*\)\s*50%\s*Deposit\s*bounus[^\n]*\n?`), ""},
	{regexp.MustCompile(`(?im)➪\s*REGISTER\s*HERE[^\n]*إنــضــم\s*إلـى\s*فــريقـي[^\n]*\n?`), "➪ Use MTG 1 Step If Loss\n"},
	{regexp.MustCompile(`\*\*\*\*`), ""},
}

// builtinLineMarkers drop whole lines. Matching is a case-insensitive
// substring check against the lowercased line.
var builtinLineMarkers = []string{
	"register here",
	"إنــضــم",
	"code",
	"tarekteam",
	"deposit",
	"bounus",
}

// builtinUnwraps run after line dropping and strip markdown wrappers
// while keeping the visible text.
var builtinUnwraps = []struct {
	re   *regexp.Regexp
	with string
}{
	{regexp.MustCompile("\\*\\*([^*]+)\\*\\*"), "$1"},
	{regexp.MustCompile("`([^`]+)`"), "$1"},
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`), "$1"},
	{regexp.MustCompile(`@tarekrash3d`), "@Gazew_07"},
}

type replacement struct {
	literal string
	re      *regexp.Regexp
	with    string
}

// Transform is the rewriting filter policy. It always admits the message;
// the rewritten text may be empty.
type Transform struct {
	mu           sync.RWMutex
	removals     []string
	patterns     []*regexp.Regexp
	replacements []replacement
	log          zerolog.Logger
}

var _ Policy = (*Transform)(nil)

// NewTransform builds a transform policy from rule strings.
func NewTransform(rules []string, log zerolog.Logger) *Transform {
	t := &Transform{log: log}
	t.AddRules(rules)
	return t
}

// AddRules parses and appends rule strings. Invalid regular expressions
// are logged and skipped; all other rules still apply.
func (t *Transform) AddRules(rules []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rule := range rules {
		t.addRule(rule)
	}
}

func (t *Transform) addRule(rule string) {
	if rule == "" {
		return
	}
	if idx := strings.Index(rule, arrowToken); idx >= 0 {
		pattern := rule[:idx]
		with := rule[idx+len(arrowToken):]
		if isPattern(pattern) {
			re, err := compilePattern(pattern)
			if err != nil {
				t.log.Error().Err(err).Str("pattern", pattern).Msg("Invalid regex in replacement rule, skipping")
				return
			}
			t.replacements = append(t.replacements, replacement{re: re, with: with})
			t.log.Debug().Str("pattern", pattern).Str("with", with).Msg("Added regex replacement rule")
			return
		}
		t.replacements = append(t.replacements, replacement{literal: pattern, with: with})
		t.log.Debug().Str("literal", pattern).Str("with", with).Msg("Added literal replacement rule")
		return
	}
	if isPattern(rule) {
		re, err := compilePattern(rule)
		if err != nil {
			t.log.Error().Err(err).Str("pattern", rule).Msg("Invalid regex rule, skipping")
			return
		}
		t.patterns = append(t.patterns, re)
		t.log.Debug().Str("pattern", rule).Msg("Added regex removal rule")
		return
	}
	t.removals = append(t.removals, rule)
	t.log.Debug().Str("literal", rule).Msg("Added literal removal rule")
}

// ClearRules removes all user-configured rules. Built-in rules survive.
func (t *Transform) ClearRules() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removals = nil
	t.patterns = nil
	t.replacements = nil
	t.log.Debug().Msg("Cleared user-configured filter rules")
}

// RuleCount returns the number of user-configured rules currently loaded.
func (t *Transform) RuleCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.removals) + len(t.patterns) + len(t.replacements)
}

// Decide rewrites text through the built-in rules, literal removals,
// pattern removals and replacements, in that order, then trims the result.
func (t *Transform) Decide(text string) Decision {
	if text == "" {
		return Decision{Admit: true, Rewritten: ""}
	}
	out := applyBuiltins(text)

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, lit := range t.removals {
		out = strings.ReplaceAll(out, lit, "")
	}
	for _, re := range t.patterns {
		out = re.ReplaceAllString(out, "")
	}
	for _, r := range t.replacements {
		if r.re != nil {
			out = r.re.ReplaceAllString(out, r.with)
		} else {
			out = strings.ReplaceAll(out, r.literal, r.with)
		}
	}
	return Decision{Admit: true, Rewritten: strings.TrimSpace(out)}
}

func applyBuiltins(text string) string {
	out := text
	for _, r := range builtinRewrites {
		out = r.re.ReplaceAllString(out, r.with)
	}
	out = dropMarkedLines(out)
	for _, r := range builtinUnwraps {
		out = r.re.ReplaceAllString(out, r.with)
	}
	return out
}

func dropMarkedLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(line)
		blocked := false
		for _, marker := range builtinLineMarkers {
			if strings.Contains(lower, marker) {
				blocked = true
				break
			}
		}
		if !blocked {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func isPattern(rule string) bool {
	return len(rule) > 2 && strings.HasPrefix(rule, regexDelim) && strings.HasSuffix(rule, regexDelim)
}

func compilePattern(rule string) (*regexp.Regexp, error) {
	inner := rule[1 : len(rule)-1]
	return regexp.Compile("(?im)" + inner)
}
