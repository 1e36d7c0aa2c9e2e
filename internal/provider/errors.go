package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

type Kind string

const (
	KindRetryable Kind = "retryable"
	KindFatal     Kind = "fatal"
	KindAuth      Kind = "auth"
)

// Error is the only error shape adapters hand back to callers. The runner
// branches on Kind and never inspects SDK error types.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	Message    string
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" ")
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsAuth(err error) bool {
	return kindOf(err) == KindAuth
}

func IsRetryable(err error) bool {
	return kindOf(err) == KindRetryable
}

func kindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// KindForStatus maps an HTTP status from a provider API to an error kind.
func KindForStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusTooManyRequests || code == http.StatusRequestTimeout:
		return KindRetryable
	case code >= 500:
		return KindRetryable
	default:
		return KindFatal
	}
}

func statusError(providerName string, code int, msg string, err error) *Error {
	return &Error{
		Kind:       KindForStatus(code),
		Provider:   providerName,
		StatusCode: code,
		Message:    truncate(strings.TrimSpace(msg), 300),
		Err:        err,
	}
}

// transportError classifies errors that carry no HTTP status: connection
// failures, timeouts and truncated bodies are retryable, anything else fatal.
func transportError(providerName string, err error) *Error {
	kind := KindFatal
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr),
		hasRetryableHint(err.Error()):
		kind = KindRetryable
	}
	return &Error{
		Kind:     kind,
		Provider: providerName,
		Message:  truncate(err.Error(), 300),
		Err:      err,
	}
}

func hasRetryableHint(s string) bool {
	text := strings.ToLower(s)
	hints := []string{
		"too many requests",
		"rate limit",
		"timed out",
		"timeout",
		"temporarily unavailable",
		"connection reset",
		"connection refused",
		"service unavailable",
		"overloaded",
		"network is unreachable",
	}
	for _, h := range hints {
		if strings.Contains(text, h) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
