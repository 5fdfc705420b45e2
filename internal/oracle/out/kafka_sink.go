package out

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle"
	"github.com/chenzhangda16/web3-fraud-oracle/pkg/hash"
)

type KafkaSink struct {
	topic string
	p     sarama.SyncProducer
}

func NewKafkaSink(brokers []string, topic string, cfg *sarama.Config) (*KafkaSink, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return NewKafkaSinkFromProducer(p, topic), nil
}

func NewKafkaSinkFromProducer(p sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{topic: topic, p: p}
}

func (s *KafkaSink) Close() error {
	if s.p != nil {
		return s.p.Close()
	}
	return nil
}

// Emit sends one envelope. The key is stable per (cycle, address), so a
// redelivered result lands on the same partition and can be deduplicated.
func (s *KafkaSink) Emit(ctx context.Context, typ string, v any) error {
	_ = ctx // SyncProducer has no ctx

	b, err := encode(typ, v)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic:   s.topic,
		Key:     sarama.StringEncoder(messageKey(v)),
		Value:   sarama.ByteEncoder(b),
		Headers: []sarama.RecordHeader{{Key: []byte("type"), Value: []byte(typ)}},
	}
	if _, _, err := s.p.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka emit failed: %w", err)
	}
	return nil
}

func messageKey(v any) string {
	switch x := v.(type) {
	case oracle.Result:
		return hash.JobKey(x.CycleID, x.Address).Hex()
	case *oracle.Result:
		return hash.JobKey(x.CycleID, x.Address).Hex()
	case oracle.Summary:
		return x.CycleID
	case *oracle.Summary:
		return x.CycleID
	}
	return ""
}
