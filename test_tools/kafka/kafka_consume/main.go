package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IBM/sarama"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/out"
)

// Handler prints one line per oracle record on the results topic.
type Handler struct{}

func (Handler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (Handler) Cleanup(sarama.ConsumerGroupSession) error { return nil }
func (Handler) ConsumeClaim(s sarama.ConsumerGroupSession, c sarama.ConsumerGroupClaim) error {
	for msg := range c.Messages() {
		printRecord(msg)
		s.MarkMessage(msg, "")
	}
	return nil
}

func printRecord(msg *sarama.ConsumerMessage) {
	var env out.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		log.Printf("undecodable: partition=%d offset=%d err=%v", msg.Partition, msg.Offset, err)
		return
	}
	switch env.Type {
	case oracle.TypeResult:
		var r oracle.Result
		if err := json.Unmarshal(env.Data, &r); err != nil {
			log.Printf("bad result: offset=%d err=%v", msg.Offset, err)
			return
		}
		tx := ""
		if r.Receipt != nil {
			tx = r.Receipt.TxHash
		}
		log.Printf("result cycle=%s addr=%s outcome=%s kind=%s updated=%v tx=%s key=%s",
			r.CycleID, r.Address, r.Outcome, r.ErrorKind, r.BlockchainUpdated, tx, string(msg.Key))
	case oracle.TypeCycle:
		var s oracle.Summary
		if err := json.Unmarshal(env.Data, &s); err != nil {
			log.Printf("bad cycle: offset=%d err=%v", msg.Offset, err)
			return
		}
		log.Printf("cycle id=%s total=%d committed=%d read_only=%d skipped=%d failed=%d",
			s.CycleID, s.Total, s.Committed, s.ReadOnly, s.Skipped, s.Failed)
	default:
		log.Printf("type=%s value=%s partition=%d offset=%d", env.Type, string(env.Data), msg.Partition, msg.Offset)
	}
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	var (
		brokers = flag.String("brokers", "localhost:9092", "kafka brokers csv")
		topic   = flag.String("topic", "oracle.results", "results topic")
		group   = flag.String("group", "oracle-test_tools", "consumer group")
	)
	flag.Parse()

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_8_0_0
	cfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	cg, err := sarama.NewConsumerGroup(strings.Split(*brokers, ","), *group, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer cg.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for ctx.Err() == nil {
		if err := cg.Consume(ctx, []string{*topic}, Handler{}); err != nil {
			log.Fatal(err)
		}
	}
}
