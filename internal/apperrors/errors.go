package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error for response mapping.
type Kind string

const (
	KindUnauthorized     Kind = "unauthorized"
	KindValidation       Kind = "validation_error"
	KindNotProfitable    Kind = "not_profitable"
	KindVerification     Kind = "verification_failed"
	KindPartialExecution Kind = "partial_execution_failure"
	KindTransient        Kind = "transient_infrastructure_failure"
	KindConfiguration    Kind = "configuration_error"
	KindExecution        Kind = "execution_failed"
	KindNotFound         Kind = "not_found"
)

// AppError carries the error taxonomy through the pipeline. Retryable and
// NextStep are surfaced to the caller so failed requests can be reconciled
// without guessing.
type AppError struct {
	Kind      Kind                   `json:"kind"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	NextStep  string                 `json:"next_step,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// HTTPStatus maps the error kind to a response status code.
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindNotProfitable, KindVerification:
		return http.StatusUnprocessableEntity
	case KindTransient:
		return http.StatusBadGateway
	case KindExecution, KindPartialExecution:
		return http.StatusConflict
	case KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Unauthorized is deliberately undifferentiated: the caller never learns which
// of the signature, timestamp or nonce checks failed.
func Unauthorized() *AppError {
	return &AppError{Kind: KindUnauthorized, Message: "unauthorized"}
}

func Validation(format string, args ...interface{}) *AppError {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(what string) *AppError {
	return &AppError{Kind: KindNotFound, Message: what + " not found"}
}

// NotProfitable includes the computed numbers so the caller can understand why
// the trade was rejected.
func NotProfitable(spreadPct, thresholdPct string) *AppError {
	return &AppError{
		Kind:    KindNotProfitable,
		Message: fmt.Sprintf("spread %s%% below threshold %s%%", spreadPct, thresholdPct),
		Details: map[string]interface{}{
			"spread_pct":    spreadPct,
			"threshold_pct": thresholdPct,
		},
	}
}

func Verification(reason string, retryable bool) *AppError {
	e := &AppError{Kind: KindVerification, Message: reason, Retryable: retryable}
	if retryable {
		e.NextStep = "resubmit the same request once the transaction is indexed"
	}
	return e
}

// PartialExecution preserves which leg completed and with which hash, so an
// operator can reconcile manually.
func PartialExecution(completedLeg int, txHash, message string) *AppError {
	return &AppError{
		Kind:     KindPartialExecution,
		Message:  message,
		NextStep: "reconcile the completed leg manually before retrying with a fresh idempotency key",
		Details: map[string]interface{}{
			"completed_leg": completedLeg,
			"tx_hash":       txHash,
		},
	}
}

func Transient(message string) *AppError {
	return &AppError{
		Kind:      KindTransient,
		Message:   message,
		Retryable: true,
		NextStep:  "retry with the same idempotency key",
	}
}

// Execution is a non-retryable execution failure with an actionable next
// step for the caller.
func Execution(message, nextStep string) *AppError {
	return &AppError{Kind: KindExecution, Message: message, NextStep: nextStep}
}

func Configuration(message string) *AppError {
	return &AppError{
		Kind:     KindConfiguration,
		Message:  message,
		NextStep: "contact the operator; do not retry",
	}
}

// As unwraps err into an *AppError if possible.
func As(err error) (*AppError, bool) {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
