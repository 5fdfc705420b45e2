package out

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/assessment"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/chain"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/prediction"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/retry"
	"github.com/chenzhangda16/web3-fraud-oracle/pkg/hash"
)

const wallet = "0x00009277775ac7d0d59eaad8fee3d10ac6c805e8"

func sampleResult() oracle.Result {
	c := 0.85
	p := prediction.Prediction{IsFraud: true, Confidence: &c}
	a := assessment.Build(p)
	return oracle.Result{
		CycleID:           "c-1",
		Address:           wallet,
		Outcome:           oracle.OutcomeCommitted,
		Stage:             oracle.StageCommit,
		Prediction:        &p,
		Assessment:        &a,
		BlockchainUpdated: true,
		Receipt:           &chain.Receipt{TxHash: "0xabc", Nonce: 7, GasPrice: "1"},
		DurationMS:        12,
	}
}

func decodeEnvelope(t *testing.T, raw []byte) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestKafkaSinkSendsEnvelope(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		env := decodeEnvelope(t, val)
		if env.Type != oracle.TypeResult || env.TS == 0 {
			return errors.New("bad envelope header")
		}
		var r oracle.Result
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return err
		}
		if r.Address != wallet || r.Receipt.Nonce != 7 || !r.BlockchainUpdated {
			return errors.New("bad payload")
		}
		return nil
	})
	s := NewKafkaSinkFromProducer(sp, "oracle.results")

	if err := s.Emit(context.Background(), oracle.TypeResult, sampleResult()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestKafkaSinkReportsFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	s := NewKafkaSinkFromProducer(sp, "oracle.results")

	err := s.Emit(context.Background(), oracle.TypeResult, sampleResult())
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("err=%v", err)
	}
	_ = s.Close()
}

func TestMessageKey(t *testing.T) {
	r := sampleResult()
	want := hash.JobKey("c-1", wallet).Hex()
	if got := messageKey(r); got != want {
		t.Fatalf("key=%s want %s", got, want)
	}
	if got := messageKey(&r); got != want {
		t.Fatalf("pointer key=%s", got)
	}
	if got := messageKey(oracle.Summary{CycleID: "c-1"}); got != "c-1" {
		t.Fatalf("cycle key=%s", got)
	}
	if got := messageKey(42); got != "" {
		t.Fatalf("unknown key=%s", got)
	}
}

func TestLogSinkWritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(log.New(&buf, "", 0))
	if err := s.Emit(context.Background(), oracle.TypeCycle, oracle.Summary{CycleID: "c-9", Total: 3}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "[out] ") {
		t.Fatalf("line=%q", line)
	}
	env := decodeEnvelope(t, []byte(strings.TrimPrefix(line, "[out] ")))
	if env.Type != oracle.TypeCycle || !strings.Contains(string(env.Data), `"cycle_id":"c-9"`) {
		t.Fatalf("env=%+v", env)
	}
}

type memJournal struct {
	results map[string][]byte
	cycles  map[string][]byte
	closed  bool
}

func (m *memJournal) PutResult(lower string, raw []byte) error { m.results[lower] = raw; return nil }
func (m *memJournal) PutCycle(id string, raw []byte) error     { m.cycles[id] = raw; return nil }
func (m *memJournal) Close() error                             { m.closed = true; return nil }

func TestJournalSink(t *testing.T) {
	j := &memJournal{results: map[string][]byte{}, cycles: map[string][]byte{}}
	s := NewJournalSink(j)
	ctx := context.Background()

	if err := s.Emit(ctx, oracle.TypeResult, sampleResult()); err != nil {
		t.Fatalf("emit result: %v", err)
	}
	if err := s.Emit(ctx, oracle.TypeCycle, oracle.Summary{CycleID: "c-1"}); err != nil {
		t.Fatalf("emit cycle: %v", err)
	}
	if err := s.Emit(ctx, "other", 1); err != nil {
		t.Fatalf("unknown type must be ignored: %v", err)
	}

	var r oracle.Result
	if err := json.Unmarshal(j.results[wallet], &r); err != nil || r.CycleID != "c-1" {
		t.Fatalf("stored result=%s err=%v", j.results[wallet], err)
	}
	if _, ok := j.cycles["c-1"]; !ok {
		t.Fatalf("cycle not stored")
	}
	_ = s.Close()
	if !j.closed {
		t.Fatalf("close not propagated")
	}
}

type flakySink struct {
	failures int
	calls    int
	closeErr error
}

func (f *flakySink) Emit(ctx context.Context, typ string, v any) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("temporarily unavailable")
	}
	return nil
}

func (f *flakySink) Close() error { return f.closeErr }

func TestMultiRetriesEachSinkIndependently(t *testing.T) {
	p := retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
	recovers := &flakySink{failures: 2}
	broken := &flakySink{failures: 100}
	healthy := &flakySink{}
	m := NewMulti(p).Add("recovers", recovers).Add("broken", broken).Add("healthy", healthy)

	err := m.Emit(context.Background(), oracle.TypeResult, sampleResult())
	if err == nil || !strings.Contains(err.Error(), "broken") || strings.Contains(err.Error(), "recovers") {
		t.Fatalf("err=%v", err)
	}
	if recovers.calls != 3 || broken.calls != 3 || healthy.calls != 1 {
		t.Fatalf("calls recovers=%d broken=%d healthy=%d", recovers.calls, broken.calls, healthy.calls)
	}
	if m.Len() != 3 {
		t.Fatalf("len=%d", m.Len())
	}
}

func TestMultiCloseJoinsErrors(t *testing.T) {
	m := NewMulti(DefaultPolicy).
		Add("a", &flakySink{closeErr: errors.New("a failed")}).
		Add("b", &flakySink{})
	if err := m.Close(); err == nil || !strings.Contains(err.Error(), "a: a failed") {
		t.Fatalf("err=%v", err)
	}
}

func TestResultRow(t *testing.T) {
	row := resultRow(sampleResult())
	if len(row) != 14 {
		t.Fatalf("row has %d columns", len(row))
	}
	if row[2] != "committed" || row[9] != true || row[13] != int64(12) {
		t.Fatalf("row=%v", row)
	}

	skipped := oracle.Result{CycleID: "c", Address: wallet, Outcome: oracle.OutcomeSkipped, Stage: oracle.StagePredict}
	row = resultRow(skipped)
	for _, i := range []int{6, 7, 8, 10, 11} {
		v, ok := row[i].(driver.Valuer)
		if !ok {
			t.Fatalf("column %d is %T", i, row[i])
		}
		if got, _ := v.Value(); got != nil {
			t.Fatalf("column %d must be NULL, got %v", i, got)
		}
	}
}
