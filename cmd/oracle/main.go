package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/app"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/config"
	"github.com/chenzhangda16/web3-fraud-oracle/pkg/obs"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	flags := config.BindFlags(flag.CommandLine)
	var (
		once   = flag.Bool("once", false, "run a single cycle, print the summary and exit")
		cycles = flag.Int("cycles", 0, "stop after n cycles, 0 runs until signalled")
	)
	flag.Parse()

	obs.Init("oracle")

	cfg, err := flags.Resolve()
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{MaxCycles: *cycles})
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	if *once {
		s := a.RunOnce(ctx)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(s); err != nil {
			log.Printf("[oracle] print summary: err=%v", err)
		}
		return
	}

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[oracle] stopped with error: %v", err)
		_ = a.Close()
		os.Exit(1)
	}
}
