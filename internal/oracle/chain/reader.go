package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/address"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/assessment"
)

type Reader struct {
	node     Caller
	contract *common.Address
	timeout  time.Duration
}

// NewReader accepts an empty contract; Read then reports ErrNotConfigured.
func NewReader(node Caller, contract string, timeout time.Duration) (*Reader, error) {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	r := &Reader{node: node, timeout: timeout}
	if contract != "" {
		c, err := address.Parse(contract)
		if err != nil {
			return nil, fmt.Errorf("chain: contract address: %w", err)
		}
		if node == nil {
			return nil, fmt.Errorf("chain: contract configured without a node")
		}
		r.contract = &c
	}
	return r, nil
}

func (r *Reader) Configured() bool { return r.contract != nil }

// Read returns the latest stored assessment. It is a view call.
func (r *Reader) Read(ctx context.Context, checksum string) (assessment.FraudAssessment, error) {
	if r.contract == nil {
		return assessment.FraudAssessment{}, ErrNotConfigured
	}
	wallet, err := address.Parse(checksum)
	if err != nil {
		return assessment.FraudAssessment{}, err
	}
	data, err := packGet(wallet)
	if err != nil {
		return assessment.FraudAssessment{}, fmt.Errorf("%w: pack: %w", ErrReadFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	raw, err := r.node.CallContract(ctx, ethereum.CallMsg{To: r.contract, Data: data}, nil)
	if err != nil {
		return assessment.FraudAssessment{}, fmt.Errorf("%w: call: %w", ErrReadFailed, err)
	}
	a, err := unpackGet(raw)
	if err != nil {
		return assessment.FraudAssessment{}, fmt.Errorf("%w: decode: %w", ErrReadFailed, err)
	}
	return a, nil
}
