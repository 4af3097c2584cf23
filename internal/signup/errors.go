// File: internal/signup/errors.go
package signup

import (
	"errors"
	"fmt"
)

// FailureKind classifies why one account attempt died. Every kind is local to
// its attempt: it terminates the attempt with a descriptive reason and never
// aborts the batch.
type FailureKind string

const (
	KindConfigurationMissing    FailureKind = "configuration_missing"
	KindAllocationFailed        FailureKind = "allocation_failed"
	KindCodeTimeout             FailureKind = "code_timeout"
	KindInputVerificationFailed FailureKind = "input_verification_failed"
	KindElementNotFound         FailureKind = "element_not_found"
	KindNavigationTimeout       FailureKind = "navigation_timeout"
	KindBrowserCrash            FailureKind = "browser_crash"
	KindExtractionIncomplete    FailureKind = "extraction_incomplete"
	KindAttemptTimedOut         FailureKind = "attempt_timed_out"
	// KindUnknown covers defects not modeled in the taxonomy.
	KindUnknown FailureKind = "unknown"
)

// AttemptError carries the failure kind alongside the human-readable reason.
type AttemptError struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (e *AttemptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *AttemptError) Unwrap() error { return e.Err }

// failf builds an AttemptError with a formatted reason.
func failf(kind FailureKind, format string, args ...any) *AttemptError {
	return &AttemptError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// wrapf builds an AttemptError around a cause.
func wrapf(kind FailureKind, err error, format string, args ...any) *AttemptError {
	return &AttemptError{Kind: kind, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the failure kind from any error chain.
func KindOf(err error) FailureKind {
	if err == nil {
		return ""
	}
	var ae *AttemptError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}
