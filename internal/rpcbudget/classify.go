package rpcbudget

import (
	"context"
	"errors"
	"strings"

	"github.com/anassgono3-ctrl/liquidbot-core/internal/errs"
)

// ErrorKind is the raw-RPC-error taxonomy, distinct from errs.Kind:
// classification happens here, at the transport boundary, and is then
// mapped onto an errs.CoreError for the rest of the pipeline.
type ErrorKind string

const (
	ErrRateLimit429    ErrorKind = "rate_limit_429"
	ErrTimeout         ErrorKind = "timeout"
	ErrNetwork         ErrorKind = "network"
	ErrProviderDestroyed ErrorKind = "provider_destroyed"
	ErrCallException   ErrorKind = "call_exception"
	ErrUnknown         ErrorKind = "unknown"
)

// transientRaw marks which raw kinds are worth retrying: rate_limit_429,
// timeout, network, call_exception.
var transientRaw = map[ErrorKind]bool{
	ErrRateLimit429:  true,
	ErrTimeout:       true,
	ErrNetwork:       true,
	ErrCallException: true,
}

// IsTransient reports whether the classified kind should be retried.
func (k ErrorKind) IsTransient() bool { return transientRaw[k] }

// Classify inspects a raw error returned by a chain client call and buckets
// it into the error taxonomy above.
func Classify(err error) ErrorKind {
	if err == nil {
		return ErrUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ErrNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "rate limit"):
		return ErrRateLimit429
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return ErrTimeout
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "eof") || strings.Contains(msg, "broken pipe") || strings.Contains(msg, "reset by peer"):
		return ErrNetwork
	case strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert"):
		return ErrCallException
	default:
		return ErrUnknown
	}
}

// ToCoreError maps a classified RPC error onto the pipeline-wide error
// kind set.
func ToCoreError(kind ErrorKind, cause error) *errs.CoreError {
	switch kind {
	case ErrRateLimit429:
		return errs.RateLimited(cause)
	case ErrTimeout:
		return errs.Timeout("rpc_call")
	case ErrNetwork:
		return errs.Network(cause)
	case ErrProviderDestroyed:
		return errs.ProviderUnavailable("all providers cooling down")
	case ErrCallException:
		return errs.CallException(cause)
	default:
		return errs.Wrap(errs.KindCallException, "unclassified rpc error", cause)
	}
}
