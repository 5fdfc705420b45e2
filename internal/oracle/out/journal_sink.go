package out

import (
	"context"
	"encoding/json"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle"
)

// Journal is the part of journal.Store the sink writes to.
type Journal interface {
	PutResult(lower string, raw []byte) error
	PutCycle(id string, raw []byte) error
	Close() error
}

// JournalSink records the latest result per address and every summary.
type JournalSink struct {
	j Journal
}

func NewJournalSink(j Journal) *JournalSink { return &JournalSink{j: j} }

func (s *JournalSink) Emit(ctx context.Context, typ string, v any) error {
	switch x := v.(type) {
	case oracle.Result:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		return s.j.PutResult(x.Address, b)
	case oracle.Summary:
		b, err := json.Marshal(x)
		if err != nil {
			return err
		}
		return s.j.PutCycle(x.CycleID, b)
	}
	return nil
}

func (s *JournalSink) Close() error { return s.j.Close() }
