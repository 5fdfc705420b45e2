package oracle

import (
	"time"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/assessment"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/chain"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/prediction"
)

type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeReadOnly  Outcome = "read_only" // predicted, no signing key or contract
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Stage is the last step a job reached.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StagePredict   Stage = "predict"
	StageCommit    Stage = "commit"
	StageVerify    Stage = "verify"
)

// Sink record types.
const (
	TypeResult = "oracle_result"
	TypeCycle  = "oracle_cycle"
)

// Result is one address's job within a cycle.
type Result struct {
	CycleID  string `json:"cycle_id"`
	Address  string `json:"address"`
	Checksum string `json:"checksum,omitempty"`

	Outcome   Outcome `json:"outcome"`
	Stage     Stage   `json:"stage"`
	ErrorKind Kind    `json:"error_kind,omitempty"`
	Error     string  `json:"error,omitempty"`

	Prediction        *prediction.Prediction      `json:"prediction,omitempty"`
	Assessment        *assessment.FraudAssessment `json:"assessment,omitempty"`
	BlockchainUpdated bool                        `json:"blockchain_updated"`
	Receipt           *chain.Receipt              `json:"receipt,omitempty"`

	Verified       *assessment.FraudAssessment `json:"verified,omitempty"`
	VerifyMismatch bool                        `json:"verify_mismatch,omitempty"`

	DurationMS int64 `json:"duration_ms"`
}

func (r *Result) fail(stage Stage, err error) {
	r.Outcome = OutcomeFailed
	r.Stage = stage
	r.ErrorKind = Classify(err)
	r.Error = err.Error()
}

func (r *Result) skip(stage Stage, kind Kind, msg string) {
	r.Outcome = OutcomeSkipped
	r.Stage = stage
	r.ErrorKind = kind
	r.Error = msg
}

type Summary struct {
	CycleID  string    `json:"cycle_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	Total     int `json:"total"`
	Committed int `json:"committed"`
	ReadOnly  int `json:"read_only"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`

	Results []Result `json:"results"`
}

func (s *Summary) tally() {
	s.Total = len(s.Results)
	s.Committed, s.ReadOnly, s.Skipped, s.Failed = 0, 0, 0, 0
	for _, r := range s.Results {
		switch r.Outcome {
		case OutcomeCommitted:
			s.Committed++
		case OutcomeReadOnly:
			s.ReadOnly++
		case OutcomeSkipped:
			s.Skipped++
		default:
			s.Failed++
		}
	}
}

// Failures counts failed jobs by error kind.
func (s Summary) Failures() map[Kind]int {
	m := map[Kind]int{}
	for _, r := range s.Results {
		if r.Outcome == OutcomeFailed {
			m[r.ErrorKind]++
		}
	}
	return m
}
