// Package pipeline defines the classified error type shared by every
// enrichment stage, so the orchestrator can aggregate real diagnostics
// instead of losing failure information.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a pipeline failure and determines how the orchestrator
// reacts to it.
type Kind string

const (
	// KindTransient covers network failures and 5xx responses: log, skip the
	// unit, continue.
	KindTransient Kind = "transient"
	// KindRateLimited means a provider pushed back: back off, prefer cached
	// values, skip if none.
	KindRateLimited Kind = "rate_limited"
	// KindNoMatch is not a failure: the lookup ran and found nothing. Recorded
	// as "checked, no data" to prevent repeated re-queries.
	KindNoMatch Kind = "no_match"
	// KindMalformed means a single upstream item could not be parsed; the item
	// is skipped and the batch continues.
	KindMalformed Kind = "malformed"
	// KindPersistence means an upsert failed; the item is skipped, recorded,
	// and the batch continues.
	KindPersistence Kind = "persistence"
	// KindConfiguration means a required credential or setting is missing.
	// Fatal: the run aborts before any work starts.
	KindConfiguration Kind = "configuration"
)

// Error is a structured pipeline error with classification.
type Error struct {
	Kind       Kind
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Provider   string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Kind))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Provider != "" {
		parts = append(parts, fmt.Sprintf("provider=%s", e.Provider))
	}
	parts = append(parts, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// Fatal reports whether the error must abort an entire run.
func (e *Error) Fatal() bool {
	return e.Kind == KindConfiguration
}

// New creates a classified pipeline error.
func New(kind Kind, message string, retryable bool, cause error) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryable, Cause: cause}
}

// Newf creates a classified, non-retryable pipeline error with a formatted
// message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Classify categorizes an arbitrary error into a pipeline Error. Errors that
// are already classified pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return New(KindTransient, "deadline exceeded", true, err)
	}
	if errors.Is(err, context.Canceled) {
		return New(KindTransient, "canceled", false, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return New(KindTransient, "network error", true, err)
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		return &Error{Kind: KindRateLimited, Message: "rate limited", Retryable: true, Cause: err, StatusCode: 429}
	case strings.Contains(lower, "503") || strings.Contains(lower, "502") || strings.Contains(lower, "504"):
		return New(KindTransient, "upstream unavailable", true, err)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "no such host"), strings.Contains(lower, "timeout"):
		return New(KindTransient, "network error", true, err)
	default:
		return New(KindTransient, "unclassified error", false, err)
	}
}
