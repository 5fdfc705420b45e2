package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/mockpredict"
	"github.com/chenzhangda16/web3-fraud-oracle/pkg/obs"
	"github.com/chenzhangda16/web3-fraud-oracle/pkg/rng"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	var (
		addr      = flag.String("addr", "127.0.0.1:5000", "listen addr")
		data      = flag.String("data", "./configs/predictions.csv", "csv: address,prediction,probability")
		synthetic = flag.Bool("synthetic", false, "score unknown addresses instead of answering 404")
		seed      = flag.Int64("seed", 1, "seed for synthetic scores")
		fraudRate = flag.Float64("fraud-rate", 0.2, "share of synthetic scores labelled fraud")
	)
	flag.Parse()

	obs.Init("mockpredict")

	s := mockpredict.NewServer()
	if *data != "" {
		if err := s.LoadCSVFile(*data); err != nil {
			log.Fatal(err)
		}
	}
	if *synthetic {
		s.SetSynthetic(rng.New(rng.Deterministic, *seed), *fraudRate)
	}
	log.Printf("[mockpredict] loaded: rows=%d file=%s synthetic=%v", s.Len(), *data, *synthetic)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := &http.Server{Addr: *addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Printf("[mockpredict] listening: addr=%s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
