package oracle

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/address"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/chain"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/prediction"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{fmt.Errorf("%w: %q", address.ErrInvalidFormat, "0x1"), KindInvalidFormat},
		{prediction.ErrNotFound, KindNotFound},
		{fmt.Errorf("%w: status 500", prediction.ErrBadResponse), KindBadResponse},
		{fmt.Errorf("%w: %w", prediction.ErrUnreachable, context.DeadlineExceeded), KindUnreachable},
		{chain.ErrNoCredentials, KindNoCredentials},
		{fmt.Errorf("%w: tx=0x1", chain.ErrReverted), KindReverted},
		{fmt.Errorf("%w: tx=0x1: %w", chain.ErrTimeout, context.Canceled), KindTimeout},
		{fmt.Errorf("%w: send: underpriced", chain.ErrSubmissionFailed), KindSubmissionFailed},
		{chain.ErrNotConfigured, KindNotConfigured},
		{fmt.Errorf("%w: call: eof", chain.ErrReadFailed), KindReadFailed},
		{fmt.Errorf("chain: aborted before signing: %w", context.Canceled), KindCanceled},
		{context.DeadlineExceeded, KindTimeout},
		{errors.New("boom"), KindInternal},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Fatalf("Classify(%v)=%q want %q", c.err, got, c.want)
		}
	}
}

func TestKindRetryable(t *testing.T) {
	for _, k := range []Kind{KindUnreachable, KindTimeout, KindSubmissionFailed} {
		if !k.Retryable() {
			t.Fatalf("%s must be retryable", k)
		}
	}
	for _, k := range []Kind{KindReverted, KindInvalidFormat, KindNotFound, KindNoCredentials} {
		if k.Retryable() {
			t.Fatalf("%s must not be retryable", k)
		}
	}
}
