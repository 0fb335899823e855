package plan

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Validate turns raw generator output or a stored result payload into a Plan.
//
// raw may be JSON text ([]byte, string, json.RawMessage), an already decoded
// map[string]any, or a Plan. Checks run in a fixed order and stop at the first
// failure: shape, keys, element types, section ceilings, per-line grammar,
// navigation. Lines in the returned Plan are trimmed; nothing else changes, so
// validating a returned Plan again yields the same Plan.
func Validate(raw any, limits Limits) (Plan, error) {
	limits = limits.withDefaults()

	steps, assertions, err := decode(raw)
	if err != nil {
		return Plan{}, err
	}

	if len(steps) > limits.MaxSteps {
		return Plan{}, &TooManyStatementsError{Section: SectionSteps, Count: len(steps), Max: limits.MaxSteps}
	}
	if len(assertions) > limits.MaxAssertions {
		return Plan{}, &TooManyStatementsError{Section: SectionAssertions, Count: len(assertions), Max: limits.MaxAssertions}
	}

	out := Plan{
		Steps:      make([]string, 0, len(steps)),
		Assertions: make([]string, 0, len(assertions)),
	}

	hasGoto := false
	for i, line := range steps {
		line = strings.TrimSpace(line)
		stmt, ok := parseLine(SectionSteps, line)
		if !ok {
			return Plan{}, &UnsupportedStatementError{Section: SectionSteps, Index: i + 1, Text: line}
		}
		if stmt.Kind == KindGoto {
			hasGoto = true
		}
		out.Steps = append(out.Steps, line)
	}

	for i, line := range assertions {
		line = strings.TrimSpace(line)
		if _, ok := parseLine(SectionAssertions, line); !ok {
			return Plan{}, &UnsupportedStatementError{Section: SectionAssertions, Index: i + 1, Text: line}
		}
		out.Assertions = append(out.Assertions, line)
	}

	if !hasGoto {
		return Plan{}, ErrMissingNavigation
	}

	return out, nil
}

func decode(raw any) (steps, assertions []string, err error) {
	var obj map[string]any

	switch v := raw.(type) {
	case Plan:
		return v.Steps, v.Assertions, nil
	case *Plan:
		if v == nil {
			return nil, nil, ErrMalformedInput
		}
		return v.Steps, v.Assertions, nil
	case map[string]any:
		obj = v
	case []byte:
		obj, err = decodeJSON(v)
	case json.RawMessage:
		obj, err = decodeJSON(v)
	case string:
		obj, err = decodeJSON([]byte(v))
	default:
		return nil, nil, ErrMalformedInput
	}
	if err != nil {
		return nil, nil, err
	}
	if obj == nil {
		return nil, nil, ErrMalformedInput
	}

	var extra []string
	for key := range obj {
		if key != string(SectionSteps) && key != string(SectionAssertions) {
			extra = append(extra, key)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, nil, fmt.Errorf("%w: %s", ErrUnexpectedKeys, strings.Join(extra, ", "))
	}

	if steps, err = stringList(obj, SectionSteps); err != nil {
		return nil, nil, err
	}
	if assertions, err = stringList(obj, SectionAssertions); err != nil {
		return nil, nil, err
	}
	return steps, assertions, nil
}

func decodeJSON(data []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrMalformedInput
	}
	return obj, nil
}

func stringList(obj map[string]any, section Section) ([]string, error) {
	switch v := obj[string(section)].(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T, want string", ErrTypeMismatch, section, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list of strings", ErrTypeMismatch, section)
	}
}
