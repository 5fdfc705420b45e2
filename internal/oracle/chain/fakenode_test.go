package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/assessment"
)

// fakeNode is an in-memory node hosting the fraud contract. It decodes
// calldata with the real ABI and enforces sender nonces like a mempool.
type fakeNode struct {
	mu sync.Mutex

	chainID  *big.Int
	gasPrice *big.Int

	pending  map[common.Address]uint64
	sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
	store    map[common.Address]assessment.FraudAssessment

	block uint64
	now   uint64

	revert          bool
	withholdReceipt bool
	sendErr         error
	nonceDelay      time.Duration

	calls map[string]int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		chainID:  big.NewInt(11155111),
		gasPrice: big.NewInt(2_000_000_000),
		pending:  map[common.Address]uint64{},
		receipts: map[common.Hash]*types.Receipt{},
		store:    map[common.Address]assessment.FraudAssessment{},
		block:    100,
		now:      1_700_000_000,
		calls:    map[string]int{},
	}
}

func (n *fakeNode) count(name string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[name]
}

func (n *fakeNode) sentTxs() []*types.Transaction {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*types.Transaction(nil), n.sent...)
}

func (n *fakeNode) ChainID(ctx context.Context) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["chain_id"]++
	return new(big.Int).Set(n.chainID), nil
}

func (n *fakeNode) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	n.mu.Lock()
	n.calls["nonce"]++
	v := n.pending[account]
	delay := n.nonceDelay
	n.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return v, nil
}

func (n *fakeNode) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["gas_price"]++
	return new(big.Int).Set(n.gasPrice), nil
}

func (n *fakeNode) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["send"]++
	if n.sendErr != nil {
		return n.sendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(n.chainID), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if want := n.pending[from]; tx.Nonce() != want {
		return fmt.Errorf("nonce mismatch: have %d want %d", tx.Nonce(), want)
	}
	n.pending[from]++
	n.sent = append(n.sent, tx)
	n.block++

	status := types.ReceiptStatusSuccessful
	if n.revert || n.apply(tx) != nil {
		status = types.ReceiptStatusFailed
	}
	n.receipts[tx.Hash()] = &types.Receipt{
		Status:      status,
		TxHash:      tx.Hash(),
		BlockNumber: new(big.Int).SetUint64(n.block),
		GasUsed:     48_000,
	}
	return nil
}

func (n *fakeNode) apply(tx *types.Transaction) error {
	data := tx.Data()
	if len(data) < 4 {
		return errors.New("short calldata")
	}
	m, err := fraudABI.MethodById(data[:4])
	if err != nil || m.Name != methodUpdate {
		return errors.New("unknown method")
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return err
	}
	n.store[args[0].(common.Address)] = assessment.FraudAssessment{
		HasMLPrediction: args[1].(bool),
		MLIsFraudulent:  args[2].(bool),
		MLConfidence:    args[3].(*big.Int).Uint64(),
		MLTimestamp:     n.now + n.block,
		ReputationScore: args[4].(*big.Int).Uint64(),
		ReportCount:     args[5].(*big.Int).Uint64(),
		OverallRisk:     args[6].(*big.Int).Uint64(),
	}
	return nil
}

func (n *fakeNode) TransactionReceipt(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["receipt"]++
	r, ok := n.receipts[h]
	if !ok || n.withholdReceipt {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (n *fakeNode) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls["call"]++
	m, err := fraudABI.MethodById(msg.Data[:4])
	if err != nil || m.Name != methodGet {
		return nil, errors.New("execution reverted")
	}
	args, err := m.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	a := n.store[args[0].(common.Address)]
	return m.Outputs.Pack(
		a.HasMLPrediction,
		a.MLIsFraudulent,
		new(big.Int).SetUint64(a.MLConfidence),
		new(big.Int).SetUint64(a.MLTimestamp),
		new(big.Int).SetUint64(a.ReputationScore),
		new(big.Int).SetUint64(a.ReportCount),
		new(big.Int).SetUint64(a.OverallRisk),
	)
}
