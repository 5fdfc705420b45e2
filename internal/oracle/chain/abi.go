package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/assessment"
)

const (
	methodUpdate = "updateFraudAssessment"
	methodGet    = "getFraudAssessment"
)

const fraudABIJSON = `[
  {
    "inputs": [
      {"name": "walletAddress",   "type": "address"},
      {"name": "hasMLPrediction", "type": "bool"},
      {"name": "mlIsFraudulent",  "type": "bool"},
      {"name": "mlConfidence",    "type": "uint256"},
      {"name": "reputationScore", "type": "uint256"},
      {"name": "reportCount",     "type": "uint256"},
      {"name": "overallRisk",     "type": "uint256"}
    ],
    "name": "updateFraudAssessment",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  },
  {
    "inputs": [{"name": "_wallet", "type": "address"}],
    "name": "getFraudAssessment",
    "outputs": [
      {"name": "hasMLPrediction", "type": "bool"},
      {"name": "mlIsFraudulent",  "type": "bool"},
      {"name": "mlConfidence",    "type": "uint256"},
      {"name": "mlTimestamp",     "type": "uint256"},
      {"name": "reputationScore", "type": "uint256"},
      {"name": "reportCount",     "type": "uint256"},
      {"name": "overallRisk",     "type": "uint256"}
    ],
    "stateMutability": "view",
    "type": "function"
  }
]`

var fraudABI = mustParseABI(fraudABIJSON)

func mustParseABI(s string) abi.ABI {
	a, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic("chain: bad embedded abi: " + err.Error())
	}
	return a
}

func packUpdate(wallet common.Address, a assessment.FraudAssessment) ([]byte, error) {
	return fraudABI.Pack(methodUpdate,
		wallet,
		a.HasMLPrediction,
		a.MLIsFraudulent,
		new(big.Int).SetUint64(a.MLConfidence),
		new(big.Int).SetUint64(a.ReputationScore),
		new(big.Int).SetUint64(a.ReportCount),
		new(big.Int).SetUint64(a.OverallRisk),
	)
}

func packGet(wallet common.Address) ([]byte, error) {
	return fraudABI.Pack(methodGet, wallet)
}

func unpackGet(raw []byte) (assessment.FraudAssessment, error) {
	var out assessment.FraudAssessment
	vals, err := fraudABI.Unpack(methodGet, raw)
	if err != nil {
		return out, err
	}
	if len(vals) != 7 {
		return out, fmt.Errorf("want 7 outputs, got %d", len(vals))
	}
	var ok [2]bool
	out.HasMLPrediction, ok[0] = vals[0].(bool)
	out.MLIsFraudulent, ok[1] = vals[1].(bool)
	if !ok[0] || !ok[1] {
		return out, fmt.Errorf("unexpected bool outputs %T %T", vals[0], vals[1])
	}
	ints := []*uint64{&out.MLConfidence, &out.MLTimestamp, &out.ReputationScore, &out.ReportCount, &out.OverallRisk}
	for i, dst := range ints {
		v, isBig := vals[2+i].(*big.Int)
		if !isBig {
			return out, fmt.Errorf("output %d: unexpected %T", 2+i, vals[2+i])
		}
		if !v.IsUint64() {
			return out, fmt.Errorf("output %d: %s overflows uint64", 2+i, v)
		}
		*dst = v.Uint64()
	}
	return out, nil
}
