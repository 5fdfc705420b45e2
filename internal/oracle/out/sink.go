// Package out delivers cycle results to downstream consumers.
package out

import (
	"context"
	"encoding/json"
	"time"
)

type Sink interface {
	Emit(ctx context.Context, typ string, v any) error
	Close() error
}

type Envelope struct {
	Type string          `json:"type"` // oracle_result | oracle_cycle
	TS   int64           `json:"ts"`   // unix milli
	Data json.RawMessage `json:"data"`
}

var now = time.Now

func encode(typ string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, TS: now().UnixMilli(), Data: data})
}
