package assessment

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/prediction"
)

// FraudAssessment mirrors the on-chain record keyed by wallet address.
type FraudAssessment struct {
	HasMLPrediction bool   `json:"hasMLPrediction"`
	MLIsFraudulent  bool   `json:"mlIsFraudulent"`
	MLConfidence    uint64 `json:"mlConfidence"`    // percent, 0..100
	MLTimestamp     uint64 `json:"mlTimestamp"`     // block time, set by the contract
	ReputationScore uint64 `json:"reputationScore"` // basis points, 0..10000
	ReportCount     uint64 `json:"reportCount"`
	OverallRisk     uint64 `json:"overallRisk"`
}

// SameWrite reports whether b holds what a wrote. MLTimestamp is assigned by
// the chain and is ignored.
func (a FraudAssessment) SameWrite(b FraudAssessment) bool {
	a.MLTimestamp, b.MLTimestamp = 0, 0
	return a == b
}

// Defaults are the inputs the oracle does not compute itself. There is no
// community report aggregation yet, so reputation and report count are fixed.
type Defaults struct {
	ReputationScore    uint64
	ReportCount        uint64
	FallbackConfidence uint64 // used when the model reports no probability
}

func DefaultDefaults() Defaults {
	return Defaults{
		ReputationScore:    5000,
		ReportCount:        0,
		FallbackConfidence: 50,
	}
}

type Builder struct {
	d Defaults
}

func NewBuilder(d Defaults) *Builder {
	if d.FallbackConfidence > 100 {
		d.FallbackConfidence = 100
	}
	if d.ReputationScore > 10000 {
		d.ReputationScore = 10000
	}
	return &Builder{d: d}
}

var std = NewBuilder(DefaultDefaults())

// Build derives the record with the default inputs.
func Build(p prediction.Prediction) FraudAssessment { return std.Build(p) }

func (b *Builder) Build(p prediction.Prediction) FraudAssessment {
	conf := b.d.FallbackConfidence
	if p.Confidence != nil && !math.IsNaN(*p.Confidence) && !math.IsInf(*p.Confidence, 0) {
		conf = Percent(*p.Confidence)
	}
	return FraudAssessment{
		HasMLPrediction: true,
		MLIsFraudulent:  p.IsFraud,
		MLConfidence:    conf,
		ReputationScore: b.d.ReputationScore,
		ReportCount:     b.d.ReportCount,
		OverallRisk:     OverallRisk(conf),
	}
}

// Percent rounds a [0,1] probability to a whole percentage. The decimal
// conversion keeps values such as 0.285 from rounding down through float error.
// NaN maps to 0.
func Percent(confidence float64) uint64 {
	switch {
	case math.IsNaN(confidence), confidence <= 0:
		return 0
	case confidence >= 1:
		return 100
	}
	return uint64(decimal.NewFromFloat(confidence).Shift(2).Round(0).IntPart())
}

// OverallRisk is floor(confidence * 0.4). It lives on a 0..40 scale, not the
// 0..10000 scale of ReputationScore.
func OverallRisk(confidence uint64) uint64 {
	return confidence * 4 / 10
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW RISK"
	RiskMedium RiskLevel = "MEDIUM RISK"
	RiskHigh   RiskLevel = "HIGH RISK"
)

// Level buckets overallRisk on the 0..10000 scale consumers assume.
func Level(overallRisk uint64) RiskLevel {
	switch {
	case overallRisk < 3000:
		return RiskLow
	case overallRisk < 7000:
		return RiskMedium
	default:
		return RiskHigh
	}
}
