// Package app wires the oracle's collaborators from one Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/api"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/assessment"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/chain"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/config"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/journal"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/out"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/prediction"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/retry"
)

type Options struct {
	MaxCycles int // 0: run until ctx is done
}

type App struct {
	cfg config.Config

	client  *ethclient.Client
	rdb     *redis.Client
	journal *journal.Store

	predict *prediction.Client
	writer  *chain.Writer
	reader  *chain.Reader
	sinks   *out.Multi
	loop    *oracle.Loop
	srv     *http.Server
}

// New validates cfg and builds every component. Errors here are fatal
// configuration or connection errors.
func New(ctx context.Context, cfg config.Config, opt Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg}
	if err := a.build(ctx, opt); err != nil {
		_ = a.Close()
		return nil, err
	}

	mode := "read-only (no signing key or contract)"
	if a.writer.CanWrite() {
		mode = "write from=" + a.writer.From().Hex()
	}
	log.Printf("[app] ready: mode=%s sinks=%d cfg={%s}", mode, a.sinks.Len(), cfg)
	return a, nil
}

func (a *App) build(ctx context.Context, opt Options) (err error) {
	cfg := a.cfg

	a.predict = prediction.NewClient(cfg.PredictURL, cfg.PredictTimeout)

	// interface stays nil without a contract, so reader and writer run unconfigured
	var node chain.Node
	if cfg.Contract != "" {
		a.client, err = chain.Dial(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("dial rpc: %w", err)
		}
		node = a.client
	}

	lock, err := a.signerLock(ctx)
	if err != nil {
		return err
	}
	a.writer, err = chain.NewWriter(node, chain.WriterConfig{
		Contract:       cfg.Contract,
		PrivateKey:     cfg.PrivateKey,
		ChainID:        cfg.ChainID,
		GasLimit:       cfg.GasLimit,
		RPCTimeout:     cfg.RPCTimeout,
		ReceiptTimeout: cfg.ReceiptTimeout,
		ReceiptPoll:    cfg.ReceiptPoll,
	}, lock)
	if err != nil {
		return err
	}
	a.reader, err = chain.NewReader(node, cfg.Contract, cfg.RPCTimeout)
	if err != nil {
		return err
	}

	if a.sinks, err = a.buildSinks(ctx); err != nil {
		return err
	}

	a.loop, err = oracle.New(oracle.Config{
		Addresses: cfg.WorkingSet(),
		Interval:  cfg.Interval,
		Workers:   cfg.Workers,
		Verify:    cfg.Verify,
		MaxCycles: opt.MaxCycles,
	}, oracle.Deps{
		Predictor: a.predict,
		Committer: a.writer,
		Verifier:  a.reader,
		Builder: assessment.NewBuilder(assessment.Defaults{
			ReputationScore:    cfg.ReputationScore,
			ReportCount:        cfg.ReportCount,
			FallbackConfidence: cfg.FallbackConfidence,
		}),
		Sink: a.sinks,
	})
	if err != nil {
		return err
	}

	if cfg.StatusAddr != "" {
		var history api.History
		if a.journal != nil {
			history = a.journal
		}
		a.srv = &http.Server{
			Addr:              cfg.StatusAddr,
			Handler:           api.NewHandler(a.reader, a.loop, history).Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return nil
}

func (a *App) signerLock(ctx context.Context) (chain.Locker, error) {
	if a.cfg.RedisURL == "" || !a.cfg.CanWrite() {
		return nil, nil
	}
	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	a.rdb = redis.NewClient(opt)
	if err := a.rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	key, err := chain.ParseKey(a.cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	return chain.NewRedisLocker(a.rdb, crypto.PubkeyToAddress(key.PublicKey), 0), nil
}

func (a *App) buildSinks(ctx context.Context) (*out.Multi, error) {
	m := out.NewMulti(out.DefaultPolicy)
	if len(a.cfg.KafkaBrokers) > 0 {
		sc := sarama.NewConfig()
		sc.ClientID = "fraud-oracle"
		ks, err := out.NewKafkaSink(a.cfg.KafkaBrokers, a.cfg.KafkaTopic, sc)
		if err != nil {
			return m, fmt.Errorf("kafka sink: %w", err)
		}
		m.Add("kafka", ks)
	}
	if a.cfg.PGDSN != "" {
		ps, err := out.NewPGSink(ctx, a.cfg.PGDSN)
		if err != nil {
			return m, fmt.Errorf("pg sink: %w", err)
		}
		m.Add("postgres", ps)
		if err := ps.EnsureSchema(ctx); err != nil {
			return m, fmt.Errorf("pg schema: %w", err)
		}
	}
	if a.cfg.JournalPath != "" {
		j, err := journal.Open(a.cfg.JournalPath)
		if err != nil {
			return m, fmt.Errorf("journal: %w", err)
		}
		a.journal = j
		m.Add("journal", out.NewJournalSink(j))
	}
	if m.Len() == 0 {
		m.Add("log", out.NewLogSink(nil))
	}
	return m, nil
}

// Run probes the prediction service, then serves status and runs the loop
// until ctx is done or the cycle budget is spent.
func (a *App) Run(ctx context.Context) error {
	a.probe(ctx)

	g, gctx := errgroup.WithContext(ctx)
	loopDone := make(chan struct{})
	g.Go(func() error {
		defer close(loopDone)
		return a.loop.Run(gctx)
	})
	if a.srv != nil {
		g.Go(func() error {
			log.Printf("[app] status http listening: addr=%s", a.srv.Addr)
			if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-loopDone:
			}
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return a.srv.Shutdown(sctx)
		})
	}
	return g.Wait()
}

// RunOnce runs a single cycle without the status server.
func (a *App) RunOnce(ctx context.Context) oracle.Summary {
	a.probe(ctx)
	return a.loop.RunCycle(ctx)
}

// probe only logs: an unhealthy service shows up as unreachable results.
func (a *App) probe(ctx context.Context) {
	err := retry.Do(ctx, retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			log.Printf("[app] prediction health retry: attempt=%d wait=%s err=%v", attempt, wait, err)
		},
	}, a.predict.Health)
	if err != nil {
		log.Printf("[app] prediction service unhealthy, continuing: url=%s err=%v", a.cfg.PredictURL, err)
		return
	}
	log.Printf("[app] prediction service healthy: url=%s", a.cfg.PredictURL)
}

func (a *App) Close() error {
	var errs []error
	if a.sinks != nil {
		// closes the journal through its sink
		errs = append(errs, a.sinks.Close())
	} else if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.client != nil {
		a.client.Close()
	}
	return errors.Join(errs...)
}
