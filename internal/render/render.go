// Package render turns a stored plan into a site-specific, secret-substituted
// plan ready for execution.
package render

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"testplane/internal/plan"
)

var (
	ErrInvalidBaseURL        = errors.New("render: invalid base url")
	ErrUnresolvedPlaceholder = errors.New("render: unresolved placeholder")
	ErrMalformedPlaceholders = errors.New("render: malformed placeholders payload")
)

// InvalidBaseURLError carries the reason a site domain was rejected.
type InvalidBaseURLError struct {
	Raw    string
	Reason string
}

func (e *InvalidBaseURLError) Error() string {
	return fmt.Sprintf("render: invalid base url %q: %s", e.Raw, e.Reason)
}

func (e *InvalidBaseURLError) Is(target error) bool {
	return target == ErrInvalidBaseURL
}

// NormalizeBaseURL reduces raw to scheme://host[:port].
// Only http and https are accepted and nothing beyond a single trailing slash
// may follow the host.
func NormalizeBaseURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", &InvalidBaseURLError{Raw: raw, Reason: "empty"}
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", &InvalidBaseURLError{Raw: raw, Reason: err.Error()}
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		return "", &InvalidBaseURLError{Raw: raw, Reason: "missing scheme"}
	}
	if scheme != "http" && scheme != "https" {
		return "", &InvalidBaseURLError{Raw: raw, Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return "", &InvalidBaseURLError{Raw: raw, Reason: "empty host"}
	}
	if u.Path != "" && u.Path != "/" {
		return "", &InvalidBaseURLError{Raw: raw, Reason: "path not allowed"}
	}
	if u.RawQuery != "" || u.ForceQuery {
		return "", &InvalidBaseURLError{Raw: raw, Reason: "query not allowed"}
	}
	if u.Fragment != "" || strings.Contains(trimmed, "#") {
		return "", &InvalidBaseURLError{Raw: raw, Reason: "fragment not allowed"}
	}
	if u.User != nil {
		return "", &InvalidBaseURLError{Raw: raw, Reason: "userinfo not allowed"}
	}

	return scheme + "://" + u.Host, nil
}

var doubledDelimiters = []*regexp.Regexp{
	regexp.MustCompile(`waitForURL\(\s*//(.+?)//\s*\)`),
	regexp.MustCompile(`toHaveURL\(\s*//(.+?)//\s*\)`),
}

// NormalizeRegexDelimiters rewrites waitForURL(//x//) and toHaveURL(//x//) to
// their single-slash form. Any other text is returned unchanged.
func NormalizeRegexDelimiters(text string) string {
	text = doubledDelimiters[0].ReplaceAllString(text, "waitForURL(/$1/)")
	return doubledDelimiters[1].ReplaceAllString(text, "toHaveURL(/$1/)")
}

// placeholderToken matches anything still shaped like <name> after
// substitution, including <selector:name> hints a generator may leave behind.
var placeholderToken = regexp.MustCompile(`<[A-Za-z0-9_:-]+>`)

// Render substitutes placeholders into every line of p and normalizes regex
// delimiters. Keys are applied longest first, then lexicographically, so the
// result is deterministic for a given map. Keys are matched literally: a key
// of "<email>" replaces that token, a bare "email" replaces the word.
func Render(p plan.Plan, placeholders map[string]string) (plan.Plan, error) {
	keys := make([]string, 0, len(placeholders))
	for k := range placeholders {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	renderLines := func(lines []string) ([]string, error) {
		out := make([]string, 0, len(lines))
		for _, line := range lines {
			for _, k := range keys {
				line = strings.ReplaceAll(line, k, placeholders[k])
			}
			line = NormalizeRegexDelimiters(line)
			if tok := placeholderToken.FindString(line); tok != "" {
				return nil, fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, tok)
			}
			out = append(out, line)
		}
		return out, nil
	}

	steps, err := renderLines(p.Steps)
	if err != nil {
		return plan.Plan{}, err
	}
	assertions, err := renderLines(p.Assertions)
	if err != nil {
		return plan.Plan{}, err
	}
	return plan.Plan{Steps: steps, Assertions: assertions}, nil
}

// ParsePlaceholders decodes the JSON placeholder blob carried on an execution
// message. An empty blob is an empty map. Anything that is not an object of
// string values also yields an empty map, together with
// ErrMalformedPlaceholders so the caller can log it and carry on.
func ParsePlaceholders(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}, nil
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil || decoded == nil {
		return map[string]string{}, ErrMalformedPlaceholders
	}

	out := make(map[string]string, len(decoded))
	for k, v := range decoded {
		s, ok := v.(string)
		if !ok {
			return map[string]string{}, fmt.Errorf("%w: value of %q is %T", ErrMalformedPlaceholders, k, v)
		}
		out[k] = s
	}
	return out, nil
}
