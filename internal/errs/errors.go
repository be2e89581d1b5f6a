// Package errs provides the unified error type used across the bot's core,
// following the ServiceError pattern common to infrastructure/errors
// packages: a single structured type carrying a typed code, a human
// message, optional structured details, and an optional wrapped cause.
package errs

import (
	"errors"
	"fmt"
)

// Kind enumerates the error kinds the core must recognize and surface, per
// the error-handling design.
type Kind string

const (
	KindRateLimited         Kind = "rate_limited"
	KindTimeout             Kind = "timeout"
	KindNetwork             Kind = "network"
	KindProviderUnavail     Kind = "provider_unavailable"
	KindCallException       Kind = "call_exception"
	KindInvalidResponse     Kind = "invalid_response"
	KindStaleSnapshot       Kind = "stale_snapshot"
	KindBudgetExhausted     Kind = "budget_exhausted"
	KindDuplicateScan       Kind = "duplicate_scan"
	KindInflightExecution   Kind = "inflight_execution"
	KindGasCapExceeded      Kind = "gas_cap_exceeded"
	KindUnprofitable        Kind = "unprofitable"
	KindUserNotLiquidatable Kind = "user_not_liquidatable"
	KindConfigInvalid       Kind = "config_invalid"
)

// transientKinds mirrors the RPC client's error taxonomy: these are retried
// locally before surfacing to the caller.
var transientKinds = map[Kind]bool{
	KindRateLimited:   true,
	KindTimeout:       true,
	KindNetwork:       true,
	KindCallException: true,
}

// IsTransient reports whether errors of this kind should be retried locally.
func (k Kind) IsTransient() bool { return transientKinds[k] }

// CoreError is the structured error type returned by every package in this
// module. It implements error and Unwrap, and carries enough structure for
// metrics labeling and logging without string-matching messages.
type CoreError struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *CoreError) Unwrap() error { return e.Cause }

// WithDetail attaches a structured detail and returns the receiver for
// chaining.
func (e *CoreError) WithDetail(key string, value any) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// New creates a CoreError with no wrapped cause.
func New(kind Kind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap creates a CoreError wrapping an existing error.
func Wrap(kind Kind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// As extracts a *CoreError from an error chain, if present.
func As(err error) (*CoreError, bool) {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) a CoreError, or "" if
// unclassified.
func KindOf(err error) Kind {
	if ce, ok := As(err); ok {
		return ce.Kind
	}
	return ""
}

// Convenience constructors, one per Kind.

func RateLimited(err error) *CoreError {
	return Wrap(KindRateLimited, "rpc endpoint returned a rate limit response", err)
}

func Timeout(operation string) *CoreError {
	return New(KindTimeout, "operation timed out").WithDetail("operation", operation)
}

func Network(err error) *CoreError {
	return Wrap(KindNetwork, "network error communicating with rpc endpoint", err)
}

func ProviderUnavailable(reason string) *CoreError {
	return New(KindProviderUnavail, "no rpc provider available").WithDetail("reason", reason)
}

func CallException(err error) *CoreError {
	return Wrap(KindCallException, "contract call reverted or otherwise failed", err)
}

func InvalidResponse(operation string, err error) *CoreError {
	return Wrap(KindInvalidResponse, "rpc response could not be decoded", err).WithDetail("operation", operation)
}

func StaleSnapshot(reason string) *CoreError {
	return New(KindStaleSnapshot, "snapshot is no longer valid for this block").WithDetail("reason", reason)
}

func BudgetExhausted(budget string) *CoreError {
	return New(KindBudgetExhausted, "per-block budget exhausted").WithDetail("budget", budget)
}

func DuplicateScan(key string) *CoreError {
	return New(KindDuplicateScan, "scan already in flight or recently completed").WithDetail("key", key)
}

func InflightExecution(user string) *CoreError {
	return New(KindInflightExecution, "execution already in flight for user").WithDetail("user", user)
}

func GasCapExceeded(gasGwei, capGwei float64) *CoreError {
	return New(KindGasCapExceeded, "current gas price exceeds configured cap").
		WithDetail("gas_gwei", gasGwei).WithDetail("cap_gwei", capGwei)
}

func Unprofitable(reason string) *CoreError {
	return New(KindUnprofitable, "liquidation is not profitable").WithDetail("reason", reason)
}

func UserNotLiquidatable(user string) *CoreError {
	return New(KindUserNotLiquidatable, "user health factor is at or above threshold").WithDetail("user", user)
}

func ConfigInvalid(field, reason string) *CoreError {
	return New(KindConfigInvalid, "invalid configuration").WithDetail("field", field).WithDetail("reason", reason)
}
