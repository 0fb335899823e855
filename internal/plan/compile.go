package plan

import (
	"fmt"
	"regexp"
	"strings"
)

// Compile parses every line of p into its Statement variant.
//
// It is the second grammar pass run at the engine boundary: a rendered plan
// must still contain a navigation step, must carry no doubled-slash regex
// delimiter that rendering failed to normalize, and every line must parse.
// URL patterns are compiled here so the engine never fails on them mid-run.
func Compile(p Plan) (Program, error) {
	hasGoto := false
	for _, line := range p.Steps {
		if isNavigation(strings.TrimSpace(line)) {
			hasGoto = true
			break
		}
	}
	if !hasGoto {
		return Program{}, ErrMissingNavigation
	}

	steps, err := compileSection(SectionSteps, p.Steps)
	if err != nil {
		return Program{}, err
	}
	assertions, err := compileSection(SectionAssertions, p.Assertions)
	if err != nil {
		return Program{}, err
	}
	return Program{Steps: steps, Assertions: assertions}, nil
}

func compileSection(section Section, lines []string) ([]Statement, error) {
	out := make([]Statement, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if malformedDelimiter.MatchString(line) {
			return nil, fmt.Errorf("%w: %s #%d: %q", ErrMalformedRegexDelimiter, section, i+1, line)
		}
		stmt, ok := parseLine(section, line)
		if !ok {
			return nil, &UnsupportedStatementError{Section: section, Index: i + 1, Text: line}
		}
		if stmt.Pattern != "" {
			re, err := regexp.Compile(stmt.Pattern)
			if err != nil {
				return nil, fmt.Errorf("%w: %s #%d: %v", ErrInvalidPattern, section, i+1, err)
			}
			stmt.Regexp = re
		}
		out = append(out, stmt)
	}
	return out, nil
}
