package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/address"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/assessment"
)

var (
	ErrNoCredentials    = errors.New("chain: no signing key or contract configured")
	ErrSubmissionFailed = errors.New("chain: submission failed")
	ErrReverted         = errors.New("chain: transaction reverted")
	ErrTimeout          = errors.New("chain: timed out waiting for receipt")
	ErrNotConfigured    = errors.New("chain: no contract configured")
	ErrReadFailed       = errors.New("chain: read failed")
)

const DefaultGasLimit = 200000

type WriterConfig struct {
	Contract   string // empty: read-only mode
	PrivateKey string // hex, optional 0x; empty: read-only mode
	ChainID    int64  // 0 asks the node

	GasLimit       uint64
	RPCTimeout     time.Duration // per node call
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
}

// Receipt describes a submitted transaction. TxHash and Nonce are set as soon
// as the transaction was sent, so callers can report them on Timeout/Reverted.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	Nonce       uint64 `json:"nonce"`
	GasPrice    string `json:"gas_price"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
}

type Writer struct {
	cfg  WriterConfig
	node Node
	lock Locker

	contract *common.Address
	key      *ecdsa.PrivateKey
	from     common.Address

	chainMu sync.Mutex
	chainID *big.Int
}

// ParseKey decodes a hex private key. The error never echoes the input.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	k, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.New("chain: malformed private key")
	}
	return k, nil
}

// NewWriter validates the configuration. A missing key or contract is not an
// error: Commit then reports ErrNoCredentials. lock may be nil.
func NewWriter(node Node, cfg WriterConfig, lock Locker) (*Writer, error) {
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.RPCTimeout <= 0 {
		cfg.RPCTimeout = 15 * time.Second
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 2 * time.Minute
	}
	if cfg.ReceiptPoll <= 0 {
		cfg.ReceiptPoll = time.Second
	}
	if lock == nil {
		lock = NewMutexLocker()
	}
	w := &Writer{cfg: cfg, node: node, lock: lock}

	if cfg.Contract != "" {
		c, err := address.Parse(cfg.Contract)
		if err != nil {
			return nil, fmt.Errorf("chain: contract address: %w", err)
		}
		w.contract = &c
	}
	if cfg.PrivateKey != "" {
		k, err := ParseKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		w.key = k
		w.from = crypto.PubkeyToAddress(k.PublicKey)
	}
	if w.CanWrite() && node == nil {
		return nil, errors.New("chain: signing configured without a node")
	}
	if cfg.ChainID > 0 {
		w.chainID = big.NewInt(cfg.ChainID)
	}
	return w, nil
}

func (w *Writer) CanWrite() bool { return w.key != nil && w.contract != nil }

// From is the sender derived from the signing key.
func (w *Writer) From() common.Address { return w.from }

// Commit writes one assessment and waits for it to be mined. It never
// retries: SubmissionFailed and Timeout are left to the next cycle, Reverted
// needs investigation.
func (w *Writer) Commit(ctx context.Context, checksum string, a assessment.FraudAssessment) (Receipt, error) {
	var rc Receipt
	if !w.CanWrite() {
		return rc, ErrNoCredentials
	}
	wallet, err := address.Parse(checksum)
	if err != nil {
		return rc, err
	}
	data, err := packUpdate(wallet, a)
	if err != nil {
		return rc, fmt.Errorf("%w: pack: %w", ErrSubmissionFailed, err)
	}

	chainID, err := w.chainIDOf(ctx)
	if err != nil {
		return rc, err
	}

	signed, err := w.signAndSend(ctx, data, chainID, &rc)
	if err != nil {
		return rc, err
	}

	r, err := w.waitMined(ctx, signed.Hash())
	if err != nil {
		return rc, fmt.Errorf("%w: tx=%s: %w", ErrTimeout, rc.TxHash, err)
	}
	if r.BlockNumber != nil {
		rc.BlockNumber = r.BlockNumber.Uint64()
	}
	rc.GasUsed = r.GasUsed
	if r.GasUsed*10 >= w.cfg.GasLimit*9 {
		log.Printf("[chain] gas headroom low: tx=%s used=%d limit=%d", rc.TxHash, r.GasUsed, w.cfg.GasLimit)
	}
	if r.Status != types.ReceiptStatusSuccessful {
		return rc, fmt.Errorf("%w: tx=%s block=%d", ErrReverted, rc.TxHash, rc.BlockNumber)
	}
	return rc, nil
}

// signAndSend holds the signer lock from nonce fetch until the node accepted
// the transaction, so concurrent commits under one key get distinct nonces.
func (w *Writer) signAndSend(ctx context.Context, data []byte, chainID *big.Int, rc *Receipt) (*types.Transaction, error) {
	unlock, err := w.lock.Lock(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("chain: aborted before signing: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: signer lock: %w", ErrSubmissionFailed, err)
	}
	defer unlock()

	cctx, cancel := context.WithTimeout(ctx, w.cfg.RPCTimeout)
	gasPrice, err := w.node.SuggestGasPrice(cctx)
	if err != nil {
		cancel()
		return nil, w.callErr(ctx, "gas price", err)
	}
	nonce, err := w.node.PendingNonceAt(cctx, w.from)
	cancel()
	if err != nil {
		return nil, w.callErr(ctx, "nonce", err)
	}

	// last safe point: nothing signed yet
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("chain: aborted before signing: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      w.cfg.GasLimit,
		To:       w.contract,
		Value:    new(big.Int),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("%w: sign: %w", ErrSubmissionFailed, err)
	}

	// A signed transaction is always handed to the node, even during shutdown.
	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.RPCTimeout)
	defer scancel()
	if err := w.node.SendTransaction(sctx, signed); err != nil {
		return nil, fmt.Errorf("%w: send nonce=%d: %w", ErrSubmissionFailed, nonce, err)
	}

	rc.TxHash = signed.Hash().Hex()
	rc.Nonce = nonce
	rc.GasPrice = gasPrice.String()
	return signed, nil
}

func (w *Writer) callErr(ctx context.Context, what string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("chain: aborted before signing: %w", ctx.Err())
	}
	return fmt.Errorf("%w: %s: %w", ErrSubmissionFailed, what, err)
}

func (w *Writer) chainIDOf(ctx context.Context) (*big.Int, error) {
	w.chainMu.Lock()
	defer w.chainMu.Unlock()
	if w.chainID != nil {
		return w.chainID, nil
	}
	cctx, cancel := context.WithTimeout(ctx, w.cfg.RPCTimeout)
	defer cancel()
	id, err := w.node.ChainID(cctx)
	if err != nil {
		return nil, w.callErr(ctx, "chain id", err)
	}
	w.chainID = id
	return id, nil
}

func (w *Writer) waitMined(ctx context.Context, h common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.ReceiptTimeout)
	defer cancel()

	t := time.NewTicker(w.cfg.ReceiptPoll)
	defer t.Stop()
	for {
		r, err := w.node.TransactionReceipt(ctx, h)
		if err == nil && r != nil {
			return r, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			log.Printf("[chain] receipt poll err: tx=%s err=%v", h.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
