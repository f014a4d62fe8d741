package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/openfroyo/chainstage/pkg/artifact"
	"github.com/openfroyo/chainstage/pkg/ledger"
)

// ErrorClass tells the operator whether re-invoking may succeed without
// changing anything.
type ErrorClass string

const (
	// ErrorClassTransient indicates a failure that may clear on its own.
	// Examples: RPC outage, confirmation timeout, canceled invocation.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConflict indicates the record changed underneath the run.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a failure that needs operator action.
	// Examples: revert, missing artifact, missing dependency, policy denial.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error codes surfaced in step reports.
const (
	ErrCodeArtifactNotFound    = "ARTIFACT_NOT_FOUND"
	ErrCodeArtifactMalformed   = "ARTIFACT_MALFORMED"
	ErrCodeUnsupportedNetwork  = "UNSUPPORTED_NETWORK"
	ErrCodeMissingDependency   = "MISSING_DEPENDENCY"
	ErrCodeDeploymentFailed    = "DEPLOYMENT_FAILED"
	ErrCodeTransactionReverted = "TRANSACTION_REVERTED"
	ErrCodeConfirmationTimeout = "CONFIRMATION_TIMEOUT"
	ErrCodePolicyDenied        = "POLICY_DENIED"
	ErrCodeSubmissionFailed    = "SUBMISSION_FAILED"
	ErrCodeInvalidPlan         = "INVALID_PLAN"
	ErrCodeCanceled            = "CANCELED"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// EngineError is a classified step failure.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code identifies the failure kind.
	Code string `json:"code,omitempty"`

	// Role is the symbolic contract role the failing step affects.
	Role Role `json:"role,omitempty"`

	// Step is the name of the failing step.
	Step string `json:"step,omitempty"`

	// Err is the underlying cause.
	Err error `json:"-"`

	// Details carries extra context such as the revert reason or tx hash.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	switch {
	case e.Step != "" && e.Role != "":
		msg += fmt.Sprintf(" (step=%s, role=%s)", e.Step, e.Role)
	case e.Role != "":
		msg += fmt.Sprintf(" (role=%s)", e.Role)
	case e.Step != "":
		msg += fmt.Sprintf(" (step=%s)", e.Step)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is matches another *EngineError with the same class and code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithRole sets the affected role.
func (e *EngineError) WithRole(role Role) *EngineError {
	e.Role = role
	return e
}

// WithStep sets the failing step.
func (e *EngineError) WithStep(step string) *EngineError {
	e.Step = step
	return e
}

// WithCode sets the error code.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *EngineError
	return errors.As(err, &e) && e.Class == ErrorClassTransient
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	return errors.As(err, &e) && e.Class == ErrorClassPermanent
}

// CodeOf returns the code of the first EngineError in the chain, or "".
func CodeOf(err error) string {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

func missingDependency(role Role, format string, args ...any) *EngineError {
	return NewPermanentError("missing dependency", fmt.Errorf(format, args...)).
		WithCode(ErrCodeMissingDependency).
		WithRole(role)
}

// classify maps leaf-package errors onto EngineError codes. revertCode is
// used for *ledger.RevertError so deployments and calls report differently.
func classify(role Role, err error, revertCode string) *EngineError {
	var ee *EngineError
	if errors.As(err, &ee) {
		if ee.Role == "" {
			ee.Role = role
		}
		return ee
	}

	var revert *ledger.RevertError
	switch {
	case errors.As(err, &revert):
		msg := "transaction reverted"
		if revertCode == ErrCodeDeploymentFailed {
			msg = "deployment failed"
		}
		return NewPermanentError(msg, err).
			WithCode(revertCode).
			WithRole(role).
			WithDetail("tx_hash", revert.TxHash.Hex()).
			WithDetail("reason", revert.Reason)
	case errors.Is(err, artifact.ErrNotFound):
		return NewPermanentError("artifact not found", err).WithCode(ErrCodeArtifactNotFound).WithRole(role)
	case errors.Is(err, artifact.ErrMalformed), errors.Is(err, ledger.ErrNotDeployable):
		return NewPermanentError("artifact malformed", err).WithCode(ErrCodeArtifactMalformed).WithRole(role)
	case errors.Is(err, ledger.ErrUnsupportedNetwork):
		return NewPermanentError("unsupported network", err).WithCode(ErrCodeUnsupportedNetwork).WithRole(role)
	case errors.Is(err, ledger.ErrConfirmationTimeout):
		return NewTransientError("confirmation timeout", err).WithCode(ErrCodeConfirmationTimeout).WithRole(role)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return NewTransientError("invocation canceled", err).WithCode(ErrCodeCanceled).WithRole(role)
	default:
		return NewTransientError("submission failed", err).WithCode(ErrCodeSubmissionFailed).WithRole(role)
	}
}
