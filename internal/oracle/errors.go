package oracle

import (
	"context"
	"errors"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/address"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/chain"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/prediction"
)

// Kind is the stable error label reported in results and sinks.
type Kind string

const (
	KindNone             Kind = ""
	KindInvalidFormat    Kind = "invalid_format"
	KindUnreachable      Kind = "unreachable"
	KindTimeout          Kind = "timeout"
	KindBadResponse      Kind = "bad_response"
	KindNotFound         Kind = "not_found"
	KindNoCredentials    Kind = "no_credentials"
	KindSubmissionFailed Kind = "submission_failed"
	KindReverted         Kind = "reverted"
	KindNotConfigured    Kind = "not_configured"
	KindReadFailed       Kind = "read_failed"
	KindCanceled         Kind = "canceled"
	KindInternal         Kind = "internal"
)

// Classify maps err onto a Kind. Chain timeouts win over the context error
// they wrap, so a receipt wait cut short by shutdown still reads "timeout".
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, address.ErrInvalidFormat):
		return KindInvalidFormat
	case errors.Is(err, prediction.ErrNotFound):
		return KindNotFound
	case errors.Is(err, prediction.ErrBadResponse):
		return KindBadResponse
	case errors.Is(err, prediction.ErrUnreachable):
		return KindUnreachable
	case errors.Is(err, chain.ErrNoCredentials):
		return KindNoCredentials
	case errors.Is(err, chain.ErrReverted):
		return KindReverted
	case errors.Is(err, chain.ErrTimeout):
		return KindTimeout
	case errors.Is(err, chain.ErrSubmissionFailed):
		return KindSubmissionFailed
	case errors.Is(err, chain.ErrNotConfigured):
		return KindNotConfigured
	case errors.Is(err, chain.ErrReadFailed):
		return KindReadFailed
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}

// Retryable reports whether the next cycle may succeed where this one failed.
func (k Kind) Retryable() bool {
	switch k {
	case KindUnreachable, KindTimeout, KindSubmissionFailed, KindBadResponse, KindCanceled:
		return true
	}
	return false
}
