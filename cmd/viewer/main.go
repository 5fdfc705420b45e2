package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/address"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/assessment"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/chain"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/config"
)

// viewer prints the stored assessment of each address given as argument, or
// of the configured working set.
func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	flags := config.BindFlags(flag.CommandLine)
	timeout := flag.Duration("timeout", 15*time.Second, "per read timeout")
	flag.Parse()

	cfg, err := flags.Resolve()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Contract == "" {
		log.Fatal("viewer: CONTRACT_ADDRESS is required")
	}
	addrs := flag.Args()
	if len(addrs) == 0 {
		addrs = cfg.Addresses
	}
	if len(addrs) == 0 {
		log.Fatal("viewer: no addresses given")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := chain.Dial(ctx, cfg.RPCURL)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	r, err := chain.NewReader(client, cfg.Contract, *timeout)
	if err != nil {
		log.Fatal(err)
	}

	failed := 0
	for _, raw := range addrs {
		checksum, err := address.Checksum(raw)
		if err != nil {
			fmt.Printf("%s: %v\n", raw, err)
			failed++
			continue
		}
		a, err := r.Read(ctx, checksum)
		if err != nil {
			fmt.Printf("%s: %v\n", checksum, err)
			failed++
			continue
		}
		printAssessment(checksum, a)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func printAssessment(checksum string, a assessment.FraudAssessment) {
	fmt.Printf("\nWallet: %s\n", checksum)
	if !a.HasMLPrediction {
		fmt.Println("  no ML prediction stored")
		return
	}
	label := "legitimate"
	if a.MLIsFraudulent {
		label = "FRAUDULENT"
	}
	ts := time.Unix(int64(a.MLTimestamp), 0).UTC().Format(time.RFC3339)
	fmt.Printf("  ML prediction:    %s (%d%% confidence)\n", label, a.MLConfidence)
	fmt.Printf("  ML timestamp:     %s\n", ts)
	fmt.Printf("  Reputation score: %d / 10000\n", a.ReputationScore)
	fmt.Printf("  Reports:          %d\n", a.ReportCount)
	fmt.Printf("  Overall risk:     %d (%s)\n", a.OverallRisk, assessment.Level(a.OverallRisk))
}
