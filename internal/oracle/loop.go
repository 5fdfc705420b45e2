// Package oracle drives the periodic predict-then-commit cycle over a fixed
// working set of wallet addresses.
package oracle

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/address"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/assessment"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/chain"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/prediction"
)

type Predictor interface {
	Predict(ctx context.Context, lower string) (prediction.Prediction, error)
}

type Committer interface {
	Commit(ctx context.Context, checksum string, a assessment.FraudAssessment) (chain.Receipt, error)
}

type Verifier interface {
	Read(ctx context.Context, checksum string) (assessment.FraudAssessment, error)
}

type Sink interface {
	Emit(ctx context.Context, typ string, v any) error
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const DefaultInterval = time.Hour

type Config struct {
	Addresses []string
	Interval  time.Duration // pause between cycles
	Workers   int           // addresses processed in parallel
	Verify    bool          // read back after commit
	MaxCycles int           // 0: until ctx is done
}

type Deps struct {
	Predictor Predictor
	Committer Committer
	Verifier  Verifier // optional
	Builder   *assessment.Builder
	Sink      Sink    // optional
	Sleep     Sleeper // optional
	Now       func() time.Time
}

type Loop struct {
	cfg Config
	d   Deps

	mu          sync.Mutex
	quarantined map[string]string // lower address -> reverted tx
	last        *Summary
	cycles      int
}

func New(cfg Config, d Deps) (*Loop, error) {
	if d.Predictor == nil || d.Committer == nil {
		return nil, errors.New("oracle: predictor and committer are required")
	}
	if len(cfg.Addresses) == 0 {
		return nil, errors.New("oracle: empty address working set")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if d.Builder == nil {
		d.Builder = assessment.NewBuilder(assessment.DefaultDefaults())
	}
	if d.Sleep == nil {
		d.Sleep = sleepCtx
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	cfg.Addresses = append([]string(nil), cfg.Addresses...)
	return &Loop{cfg: cfg, d: d, quarantined: map[string]string{}}, nil
}

// Run repeats RunCycle with Interval pauses until ctx is done or MaxCycles
// cycles completed. It returns ctx.Err() on shutdown, nil otherwise.
func (l *Loop) Run(ctx context.Context) error {
	log.Printf("[oracle] loop start: addresses=%d workers=%d interval=%s verify=%v",
		len(l.cfg.Addresses), l.cfg.Workers, l.cfg.Interval, l.cfg.Verify)
	for n := 1; ; n++ {
		l.RunCycle(ctx)
		if err := ctx.Err(); err != nil {
			log.Printf("[oracle] loop stop: cycles=%d err=%v", n, err)
			return err
		}
		if l.cfg.MaxCycles > 0 && n >= l.cfg.MaxCycles {
			log.Printf("[oracle] loop done: cycles=%d", n)
			return nil
		}
		log.Printf("[oracle] sleeping: next_cycle_in=%s", l.cfg.Interval)
		if err := l.d.Sleep(ctx, l.cfg.Interval); err != nil {
			log.Printf("[oracle] loop stop: cycles=%d err=%v", n, err)
			return err
		}
	}
}

// RunCycle processes the whole working set once. One address's failure never
// affects another's. Once ctx is done no further address is started.
func (l *Loop) RunCycle(ctx context.Context) Summary {
	s := Summary{
		CycleID: uuid.NewString(),
		Started: l.d.Now(),
		Results: make([]Result, len(l.cfg.Addresses)),
	}
	log.Printf("[oracle] cycle start: id=%s addresses=%d", s.CycleID, len(l.cfg.Addresses))

	var g errgroup.Group
	g.SetLimit(l.cfg.Workers)
	for i, raw := range l.cfg.Addresses {
		if err := ctx.Err(); err != nil {
			r := Result{CycleID: s.CycleID, Address: raw}
			r.fail(StageNormalize, err)
			s.Results[i] = r
			continue
		}
		g.Go(func() error {
			s.Results[i] = l.process(ctx, s.CycleID, raw)
			return nil
		})
	}
	_ = g.Wait()

	s.Finished = l.d.Now()
	s.tally()
	log.Printf("[oracle] cycle done: id=%s total=%d committed=%d read_only=%d skipped=%d failed=%d took=%s",
		s.CycleID, s.Total, s.Committed, s.ReadOnly, s.Skipped, s.Failed, s.Finished.Sub(s.Started))
	if s.Failed > 0 {
		log.Printf("[oracle] cycle failures: id=%s by_kind=%v", s.CycleID, s.Failures())
	}

	l.mu.Lock()
	l.last = &s
	l.cycles++
	l.mu.Unlock()

	l.emit(ctx, TypeCycle, s)
	return s
}

// LastSummary returns the most recent completed cycle.
func (l *Loop) LastSummary() (Summary, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.last == nil {
		return Summary{}, false
	}
	return *l.last, true
}

func (l *Loop) Cycles() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cycles
}

// Quarantined returns the reverted transaction that removed lower from the
// working set, if any.
func (l *Loop) Quarantined(lower string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.quarantined[lower]
	return tx, ok
}

func (l *Loop) quarantine(lower, tx string) {
	l.mu.Lock()
	l.quarantined[lower] = tx
	l.mu.Unlock()
}

func (l *Loop) process(ctx context.Context, cycleID, raw string) Result {
	start := l.d.Now()
	r := l.run(ctx, Result{CycleID: cycleID, Address: raw, Stage: StageNormalize})
	r.DurationMS = l.d.Now().Sub(start).Milliseconds()
	l.logResult(r)
	l.emit(ctx, TypeResult, r)
	return r
}

func (l *Loop) run(ctx context.Context, r Result) Result {
	lower, err := address.Normalize(r.Address)
	if err != nil {
		r.fail(StageNormalize, err)
		return r
	}
	checksum, _ := address.Checksum(lower)
	r.Address, r.Checksum = lower, checksum

	if tx, ok := l.Quarantined(lower); ok {
		r.skip(StageCommit, KindReverted, "quarantined after reverted tx="+tx)
		return r
	}

	r.Stage = StagePredict
	p, err := l.d.Predictor.Predict(ctx, lower)
	if errors.Is(err, prediction.ErrNotFound) {
		r.skip(StagePredict, KindNotFound, err.Error())
		return r
	}
	if err != nil {
		r.fail(StagePredict, err)
		return r
	}
	a := l.d.Builder.Build(p)
	r.Prediction, r.Assessment = &p, &a

	r.Stage = StageCommit
	rc, err := l.d.Committer.Commit(ctx, checksum, a)
	if rc.TxHash != "" {
		r.Receipt = &rc
	}
	switch {
	case errors.Is(err, chain.ErrNoCredentials):
		r.Outcome = OutcomeReadOnly
	case err != nil:
		r.fail(StageCommit, err)
		if errors.Is(err, chain.ErrReverted) {
			l.quarantine(lower, rc.TxHash)
		}
		return r
	default:
		r.Outcome = OutcomeCommitted
		r.BlockchainUpdated = true
	}

	if l.cfg.Verify && l.d.Verifier != nil && ctx.Err() == nil {
		l.verify(ctx, &r, a)
	}
	return r
}

// verify never changes the outcome; it only annotates the result.
func (l *Loop) verify(ctx context.Context, r *Result, want assessment.FraudAssessment) {
	got, err := l.d.Verifier.Read(ctx, r.Checksum)
	if errors.Is(err, chain.ErrNotConfigured) {
		return
	}
	if err != nil {
		log.Printf("[oracle] verify read failed: addr=%s kind=%s err=%v", r.Address, Classify(err), err)
		return
	}
	r.Stage = StageVerify
	r.Verified = &got
	if r.BlockchainUpdated && !got.SameWrite(want) {
		r.VerifyMismatch = true
		log.Printf("[oracle] verify mismatch: addr=%s want=%+v got=%+v", r.Address, want, got)
	}
}

func (l *Loop) logResult(r Result) {
	switch r.Outcome {
	case OutcomeCommitted:
		log.Printf("[oracle] committed: addr=%s fraud=%v confidence=%d risk=%d tx=%s nonce=%d",
			r.Checksum, r.Prediction.IsFraud, r.Assessment.MLConfidence, r.Assessment.OverallRisk,
			r.Receipt.TxHash, r.Receipt.Nonce)
	case OutcomeReadOnly:
		log.Printf("[oracle] read-only, not written: addr=%s fraud=%v confidence=%d risk=%d",
			r.Address, r.Prediction.IsFraud, r.Assessment.MLConfidence, r.Assessment.OverallRisk)
	case OutcomeSkipped:
		log.Printf("[oracle] skipped: addr=%s kind=%s reason=%s", r.Address, r.ErrorKind, r.Error)
	default:
		tx := ""
		if r.Receipt != nil {
			tx = r.Receipt.TxHash
		}
		log.Printf("[oracle] failed: addr=%s stage=%s kind=%s tx=%s err=%s", r.Address, r.Stage, r.ErrorKind, tx, r.Error)
	}
}

func (l *Loop) emit(ctx context.Context, typ string, v any) {
	if l.d.Sink == nil {
		return
	}
	// records of an interrupted cycle are still delivered
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := l.d.Sink.Emit(ectx, typ, v); err != nil {
		log.Printf("[oracle] sink emit failed: type=%s err=%v", typ, err)
	}
}
