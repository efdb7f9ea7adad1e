package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an infrastructure error for retry decisions.
type Kind string

const (
	// KindTransient marks errors worth retrying (timeouts, 5xx-equivalents).
	KindTransient Kind = "transient"

	// KindPermanent marks errors that must not be retried
	// (authentication failures, malformed or unknown targets).
	KindPermanent Kind = "permanent"
)

// SpecError reports an invalid rollout specification.
// Spec errors are rejected synchronously and never enter the state machine.
type SpecError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e SpecError) Error() string {
	msg := "invalid rollout spec"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// RouterError wraps a traffic router failure with its classification.
type RouterError struct {
	Service string
	Weight  int
	Kind    Kind
	Err     error
}

func (e RouterError) Error() string {
	return fmt.Sprintf("router error (%s) setting weight %d for %s: %v", e.Kind, e.Weight, e.Service, e.Err)
}

func (e RouterError) Unwrap() error {
	return e.Err
}

// SourceError wraps a metric source failure with its classification.
type SourceError struct {
	Service string
	Kind    Kind
	Err     error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("metric source error (%s) for %s: %v", e.Kind, e.Service, e.Err)
}

func (e SourceError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// Transient wraps err as a transient infrastructure error.
func Transient(err error) error {
	return classified{kind: KindTransient, err: err}
}

// Permanent wraps err as a permanent infrastructure error.
func Permanent(err error) error {
	return classified{kind: KindPermanent, err: err}
}

type classified struct {
	kind Kind
	err  error
}

func (c classified) Error() string {
	return fmt.Sprintf("%s: %v", c.kind, c.err)
}

func (c classified) Unwrap() error {
	return c.err
}

type kinder interface {
	errKind() Kind
}

func (c classified) errKind() Kind  { return c.kind }
func (e RouterError) errKind() Kind { return e.Kind }
func (e SourceError) errKind() Kind { return e.Kind }

// KindOf walks the error chain and returns the first classification found.
// Unclassified errors default to transient: an unknown failure cannot
// justify skipping the retry budget.
func KindOf(err error) Kind {
	for err != nil {
		if k, ok := err.(kinder); ok {
			return k.errKind()
		}
		err = errors.Unwrap(err)
	}
	return KindTransient
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindTransient
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindPermanent
}

// IsSpecError reports whether err originated from spec validation.
func IsSpecError(err error) bool {
	var specErr SpecError
	return errors.As(err, &specErr)
}

// ClassifyMessage guesses a classification from an error message when the
// collaborator gives us nothing better. Used by adapters for raw transport
// errors that carry no status code.
func ClassifyMessage(err error) Kind {
	if err == nil {
		return KindTransient
	}

	msg := strings.ToLower(err.Error())
	permanentPatterns := []string{
		"unauthorized",
		"forbidden",
		"authentication",
		"invalid credentials",
		"not found",
		"malformed",
	}
	for _, pattern := range permanentPatterns {
		if strings.Contains(msg, pattern) {
			return KindPermanent
		}
	}

	return KindTransient
}
