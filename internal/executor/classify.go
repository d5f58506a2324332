package executor

import (
	"strings"

	"arbcontrol/internal/apperrors"
)

// transientPatterns is the transient-infrastructure vocabulary. Errors
// matching any of these are safe to retry with a fresh request (same
// idempotency key); everything else needs operator or caller action first.
var transientPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"network",
	"bad gateway",
	"gateway",
	"too many requests",
	"rate limit",
	"temporarily unavailable",
	"eof",
}

// IsTransient reports whether err looks like transient infrastructure
// trouble rather than a permanent execution problem.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// nextStep maps known permanent failures to the action that unblocks them.
func nextStep(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "insufficient balance"):
		return "fund the executing wallet and retry with a fresh idempotency key"
	case strings.Contains(msg, "reverted"):
		return "inspect the revert reason on-chain before retrying"
	case strings.Contains(msg, "nonce too low"):
		return "wait for the pending transaction to settle, then retry"
	default:
		return "review the error and retry with a fresh idempotency key"
	}
}

// classify wraps a raw execution error into the taxonomy.
func classify(err error, message string) *apperrors.AppError {
	if IsTransient(err) {
		return apperrors.Transient(message + ": " + err.Error())
	}
	return apperrors.Execution(message+": "+err.Error(), nextStep(err))
}
