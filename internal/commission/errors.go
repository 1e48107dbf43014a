package commission

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation is matched by every ValidationError.
var ErrValidation = errors.New("ledger validation failed")

// FieldError describes one rejected ledger cell.
type FieldError struct {
	Line   int    `json:"line,omitempty"`
	Column string `json:"column"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

func (f FieldError) String() string {
	var b strings.Builder
	if f.Line > 0 {
		fmt.Fprintf(&b, "line %d ", f.Line)
	}
	b.WriteString(f.Column)
	b.WriteString(": ")
	b.WriteString(f.Reason)
	if f.Value != "" {
		fmt.Fprintf(&b, " (%q)", f.Value)
	}
	return b.String()
}

// ValidationError rejects a whole ledger batch.
type ValidationError struct {
	Problems []FieldError
}

const maxListedProblems = 5

func (e *ValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, maxListedProblems)
	for i, p := range e.Problems {
		if i == maxListedProblems {
			break
		}
		parts = append(parts, p.String())
	}
	msg := ErrValidation.Error() + ": " + strings.Join(parts, "; ")
	if extra := len(e.Problems) - maxListedProblems; extra > 0 {
		msg += fmt.Sprintf("; and %d more", extra)
	}
	return msg
}

// Unwrap allows errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// MissingColumns reports required columns absent from a ledger header.
func MissingColumns(columns ...string) *ValidationError {
	problems := make([]FieldError, 0, len(columns))
	for _, col := range columns {
		problems = append(problems, FieldError{Column: col, Reason: "required column missing"})
	}
	return &ValidationError{Problems: problems}
}
