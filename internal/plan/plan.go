// Package plan defines the closed statement grammar for browser test plans.
//
// A Plan is the validated, line-oriented form stored on a proposal. A Program
// is the compiled form the execution engine runs: every line parsed exactly
// once into a Statement variant.
package plan

import (
	"fmt"
	"regexp"
)

// Default ceilings applied when Limits leaves a field at zero.
const (
	DefaultMaxSteps      = 60
	DefaultMaxAssertions = 40
)

// Plan is an ordered list of step lines followed by assertion lines.
type Plan struct {
	Steps      []string `json:"steps"`
	Assertions []string `json:"assertions"`
}

// Limits bounds the number of statements a plan may carry.
type Limits struct {
	MaxSteps      int
	MaxAssertions int
}

// DefaultLimits returns the ceilings used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxSteps: DefaultMaxSteps, MaxAssertions: DefaultMaxAssertions}
}

func (l Limits) withDefaults() Limits {
	if l.MaxSteps <= 0 {
		l.MaxSteps = DefaultMaxSteps
	}
	if l.MaxAssertions <= 0 {
		l.MaxAssertions = DefaultMaxAssertions
	}
	return l
}

// Section names the half of a plan a statement belongs to.
type Section string

const (
	SectionSteps      Section = "steps"
	SectionAssertions Section = "assertions"
)

// Kind identifies one allowed statement form.
type Kind int

const (
	KindGoto Kind = iota + 1
	KindFill
	KindClick
	KindWaitForSelector
	KindWaitForURL
	KindWaitForURLPattern

	KindExpectURL
	KindExpectURLPattern
	KindExpectVisible
	KindExpectContainsText
)

var kindNames = map[Kind]string{
	KindGoto:               "goto",
	KindFill:               "fill",
	KindClick:              "click",
	KindWaitForSelector:    "wait_for_selector",
	KindWaitForURL:         "wait_for_url",
	KindWaitForURLPattern:  "wait_for_url_pattern",
	KindExpectURL:          "expect_url",
	KindExpectURLPattern:   "expect_url_pattern",
	KindExpectVisible:      "expect_visible",
	KindExpectContainsText: "expect_contains_text",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsAssertion reports whether the kind belongs to the assertion set.
func (k Kind) IsAssertion() bool {
	return k >= KindExpectURL
}

// RedactedFill is recorded in traces in place of every fill statement.
const RedactedFill = "await page.fill('<***>', '<***>')"

// Statement is one parsed line. Only the fields relevant to Kind are set.
type Statement struct {
	Kind Kind
	// Text is the trimmed source line.
	Text string

	Selector string
	URL      string
	// Pattern is the regular expression source between the slash delimiters.
	// Regexp is its compiled form, set by Compile.
	Pattern string
	Regexp  *regexp.Regexp
	// Value is the fill value or the expected text.
	Value string
}

// Trace returns the text recorded for this statement in an execution trace.
// Fill statements never expose their selector or value.
func (s Statement) Trace() string {
	if s.Kind == KindFill {
		return RedactedFill
	}
	return s.Text
}

// Program is a compiled Plan.
type Program struct {
	Steps      []Statement
	Assertions []Statement
}
