// Package redact rewrites error messages before they reach clients.
//
// A Redactor holds an ordered list of rules. Each rule can match an error
// message by literal substring, by regular expression, or both. Matching runs
// in two phases: every rule's literal text is checked first, in order, and only
// if none of them is contained in the message are the patterns tried, again in
// order. A literal match returns the rule's replacement verbatim. A pattern
// match expands positional back-references ($1, $2, ...) in the replacement
// with the pattern's capture groups. When nothing matches the message is
// returned unchanged.
//
// Basic usage:
//
//	r := redact.New([]redact.Rule{
//		{MatchText: "Connection refused", Replacement: "Service unavailable"},
//		{MatchPattern: `Duplicate entry '.*' for key '(\w+)'`, Replacement: "Duplicate value for field $1"},
//	})
//	msg := r.Redact(err.Error())
//
// A Redactor is immutable after New and safe for concurrent use.
package redact

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// backref matches a positional back-reference marker in a replacement template.
var backref = regexp.MustCompile(`\$(\d+)`)

// Rule maps a recognizable error signature to client-facing text.
type Rule struct {
	// MatchText is a literal substring searched for in the message.
	MatchText string `json:"match_text,omitempty" validate:"required_without=MatchPattern"`

	// MatchPattern is a regular expression (RE2 syntax) applied when no rule's
	// MatchText is found in the message.
	MatchPattern string `json:"match_pattern,omitempty" validate:"omitempty,regexp"`

	// Replacement is the text returned on a match. After a pattern match,
	// $N markers are replaced with capture group N.
	Replacement string `json:"replacement"`
}

// MatchKind reports which phase produced a redaction.
type MatchKind int

const (
	// MatchNone means no rule matched and the message was returned unchanged.
	MatchNone MatchKind = iota

	// MatchLiteral means a rule's MatchText was found in the message.
	MatchLiteral

	// MatchPattern means a rule's MatchPattern matched the message.
	MatchPattern
)

// String returns the lowercase name of the match kind.
func (k MatchKind) String() string {
	switch k {
	case MatchLiteral:
		return "literal"
	case MatchPattern:
		return "pattern"
	default:
		return "none"
	}
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Redactor applies an ordered list of rules to error messages.
type Redactor struct {
	rules []compiledRule
	err   error
}

// New compiles rules into a Redactor. It never fails: a rule whose pattern
// does not compile keeps its literal text but never matches in the pattern
// phase. Compile errors are available from Err.
func New(rules []Rule) *Redactor {
	r := &Redactor{rules: make([]compiledRule, len(rules))}

	var errs []error
	for i, rule := range rules {
		r.rules[i].Rule = rule
		if rule.MatchPattern == "" {
			continue
		}
		re, err := regexp.Compile(rule.MatchPattern)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d: invalid pattern %q: %w", i, rule.MatchPattern, err))
			continue
		}
		r.rules[i].re = re
	}
	r.err = errors.Join(errs...)

	return r
}

// Redact is the one-shot form of New(rules).Redact(message).
func Redact(message string, rules []Rule) string {
	return New(rules).Redact(message)
}

// Err returns the pattern compile errors collected by New, or nil.
func (r *Redactor) Err() error {
	if r == nil {
		return nil
	}
	return r.err
}

// Rules returns a copy of the configured rules in evaluation order.
func (r *Redactor) Rules() []Rule {
	if r == nil {
		return nil
	}
	out := make([]Rule, len(r.rules))
	for i, cr := range r.rules {
		out[i] = cr.Rule
	}
	return out
}

// Redact returns the client-facing text for message.
func (r *Redactor) Redact(message string) string {
	out, _ := r.Match(message)
	return out
}

// Match is Redact that also reports which phase matched.
// A failure while matching yields the original message and MatchNone.
func (r *Redactor) Match(message string) (out string, kind MatchKind) {
	if r == nil || len(r.rules) == 0 {
		return message, MatchNone
	}

	defer func() {
		if rec := recover(); rec != nil {
			out, kind = message, MatchNone
		}
	}()

	for _, rule := range r.rules {
		if rule.MatchText != "" && strings.Contains(message, rule.MatchText) {
			return rule.Replacement, MatchLiteral
		}
	}

	for _, rule := range r.rules {
		if rule.re == nil {
			continue
		}
		groups := rule.re.FindStringSubmatchIndex(message)
		if groups == nil {
			continue
		}
		return expand(rule.Replacement, message, groups), MatchPattern
	}

	return message, MatchNone
}

// expand replaces $N markers in template with capture group N of the match
// described by groups (as returned by FindStringSubmatchIndex). Markers
// without a corresponding group are left as written.
func expand(template, message string, groups []int) string {
	n := len(groups)/2 - 1
	return backref.ReplaceAllStringFunc(template, func(marker string) string {
		idx, err := strconv.Atoi(marker[1:])
		if err != nil || idx < 1 || idx > n {
			return marker
		}
		start, end := groups[2*idx], groups[2*idx+1]
		if start < 0 {
			return ""
		}
		return message[start:end]
	})
}
