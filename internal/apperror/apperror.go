// Package apperror defines the machine-readable error taxonomy shared by the
// application services and the HTTP adapter. Every failure that crosses the
// API boundary carries a Kind so callers can branch on it (e.g. offering the
// "add a credential" remediation on rate_limit) instead of parsing messages.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the machine-readable error classification.
type Kind string

const (
	KindInvalidCredential Kind = "invalid_credential"
	KindAccessDenied      Kind = "access_denied"
	KindRateLimit         Kind = "rate_limit"
	KindNetwork           Kind = "network_error"
	KindTimeout           Kind = "timeout"
	KindNotFound          Kind = "not_found"
	KindRepoNotFound      Kind = "repo_not_found"
	KindValidation        Kind = "validation_error"
	KindInternal          Kind = "internal"
)

// Error is a classified application error. ResetAt and Tier are populated
// only for KindRateLimit.
type Error struct {
	Kind    Kind
	Message string
	Err     error

	ResetAt time.Time
	Tier    string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindInternal when err carries no
// classification.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// NotFound reports a missing resource addressed by id.
func NotFound(resource string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("%s %v not found", resource, id),
	}
}

// Validation reports a malformed or missing input field.
func Validation(field, message string) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: fmt.Sprintf("%s: %s", field, message),
	}
}

// InvalidCredential reports a token the provider rejected.
func InvalidCredential(message string) *Error {
	return &Error{Kind: KindInvalidCredential, Message: message}
}

// AccessDenied reports a repository the token cannot read. The provider does
// not distinguish private, wrong-scope, and nonexistent repositories; neither
// do we.
func AccessDenied(message string) *Error {
	return &Error{Kind: KindAccessDenied, Message: message}
}

// RepoNotFound reports a repository the provider says does not exist.
func RepoNotFound(repoFullName string) *Error {
	return &Error{
		Kind:    KindRepoNotFound,
		Message: fmt.Sprintf("repository %s not found", repoFullName),
	}
}

// RateLimit reports provider rate exhaustion for the given tier, carrying the
// reset time so callers can surface a retry-after hint.
func RateLimit(tier string, resetAt time.Time, err error) *Error {
	return &Error{
		Kind:    KindRateLimit,
		Message: fmt.Sprintf("rate limit exhausted for %s tier, resets at %s", tier, resetAt.UTC().Format(time.RFC3339)),
		Err:     err,
		ResetAt: resetAt,
		Tier:    tier,
	}
}

// Network wraps a transport-level failure.
func Network(err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Message: fmt.Sprintf("provider request failed: %v", err),
		Err:     err,
	}
}

// Timeout wraps a deadline-exceeded failure.
func Timeout(operation string, err error) *Error {
	return &Error{
		Kind:    KindTimeout,
		Message: fmt.Sprintf("%s timed out", operation),
		Err:     err,
	}
}
