package plan

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedInput          = errors.New("plan: malformed input")
	ErrUnexpectedKeys          = errors.New("plan: unexpected keys")
	ErrTypeMismatch            = errors.New("plan: type mismatch")
	ErrTooManyStatements       = errors.New("plan: too many statements")
	ErrUnsupportedStatement    = errors.New("plan: unsupported statement")
	ErrMissingNavigation       = errors.New("plan: steps must contain at least one page.goto")
	ErrMalformedRegexDelimiter = errors.New("plan: malformed regex delimiter")
	ErrInvalidPattern          = errors.New("plan: invalid url pattern")
)

// UnsupportedStatementError reports the first line that matched no allowed
// form. Index is 1-based within its section.
type UnsupportedStatementError struct {
	Section Section
	Index   int
	Text    string
}

func (e *UnsupportedStatementError) Error() string {
	return fmt.Sprintf("plan: unsupported %s statement #%d: %q", e.Section, e.Index, e.Text)
}

func (e *UnsupportedStatementError) Is(target error) bool {
	return target == ErrUnsupportedStatement
}

// TooManyStatementsError reports a section that exceeds its ceiling.
type TooManyStatementsError struct {
	Section Section
	Count   int
	Max     int
}

func (e *TooManyStatementsError) Error() string {
	return fmt.Sprintf("plan: too many %s: %d > %d", e.Section, e.Count, e.Max)
}

func (e *TooManyStatementsError) Is(target error) bool {
	return target == ErrTooManyStatements
}
