// Package config resolves the oracle configuration from defaults, an optional
// YAML file, an optional .env file, the process environment and flags, in
// that order of increasing precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/address"
	"github.com/chenzhangda16/web3-fraud-oracle/internal/oracle/chain"
	"github.com/chenzhangda16/web3-fraud-oracle/pkg/obs"
)

type Config struct {
	PredictURL     string        `yaml:"ml_api_url"`
	PredictTimeout time.Duration `yaml:"predict_timeout"`

	RPCURL         string        `yaml:"rpc_url"`
	Contract       string        `yaml:"contract_address"`
	PrivateKey     string        `yaml:"private_key"`
	ChainID        int64         `yaml:"chain_id"`
	GasLimit       uint64        `yaml:"gas_limit"`
	RPCTimeout     time.Duration `yaml:"rpc_timeout"`
	ReceiptTimeout time.Duration `yaml:"receipt_timeout"`
	ReceiptPoll    time.Duration `yaml:"receipt_poll"`

	Addresses []string      `yaml:"addresses"`
	Interval  time.Duration `yaml:"interval"`
	Workers   int           `yaml:"workers"`
	Verify    bool          `yaml:"verify"`

	// written with every assessment until a reputation source exists
	ReputationScore    uint64 `yaml:"reputation_score"`
	ReportCount        uint64 `yaml:"report_count"`
	FallbackConfidence uint64 `yaml:"fallback_confidence"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	PGDSN        string   `yaml:"pg_dsn"`
	JournalPath  string   `yaml:"journal_path"`
	RedisURL     string   `yaml:"redis_url"`
	StatusAddr   string   `yaml:"status_addr"`
}

func Default() Config {
	return Config{
		PredictURL:         "http://localhost:5000",
		PredictTimeout:     10 * time.Second,
		RPCURL:             "http://localhost:8545",
		GasLimit:           chain.DefaultGasLimit,
		RPCTimeout:         15 * time.Second,
		ReceiptTimeout:     2 * time.Minute,
		ReceiptPoll:        time.Second,
		Interval:           time.Hour,
		Workers:            1,
		Verify:             true,
		ReputationScore:    5000,
		ReportCount:        0,
		FallbackConfidence: 50,
		KafkaTopic:         "oracle.results",
	}
}

// Load resolves the configuration. yamlPath and envFile may be empty; a
// missing envFile is ignored, a missing yamlPath is an error.
func Load(yamlPath, envFile string) (Config, error) {
	c := Default()
	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return c, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
		if err := decodeYAML(raw, &c); err != nil {
			return c, fmt.Errorf("config: %s: %w", yamlPath, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case errors.Is(err, fs.ErrNotExist):
		default:
			return c, fmt.Errorf("config: read %s: %w", envFile, err)
		}
	}
	lookup := func(k string) (string, bool) {
		if v, ok := os.LookupEnv(k); ok {
			return v, true
		}
		v, ok := dotenv[k]
		return v, ok
	}
	if err := c.applyEnv(lookup); err != nil {
		return c, err
	}
	return c, nil
}

func decodeYAML(raw []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(k string, dst *string) {
		if v, ok := lookup(k); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	list := func(k string, dst *[]string) {
		if v, ok := lookup(k); ok {
			*dst = SplitList(v)
		}
	}

	str("ML_API_URL", &c.PredictURL)
	str("RPC_URL", &c.RPCURL)
	str("CONTRACT_ADDRESS", &c.Contract)
	str("PRIVATE_KEY", &c.PrivateKey)
	str("KAFKA_TOPIC", &c.KafkaTopic)
	str("PG_DSN", &c.PGDSN)
	str("JOURNAL_PATH", &c.JournalPath)
	str("REDIS_URL", &c.RedisURL)
	str("STATUS_ADDR", &c.StatusAddr)
	list("ORACLE_ADDRESSES", &c.Addresses)
	list("KAFKA_BROKERS", &c.KafkaBrokers)

	var errs []error
	parse := func(k string, set func(string) error) {
		v, ok := lookup(k)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		if err := set(strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", k, err))
		}
	}
	parse("CHAIN_ID", func(v string) (err error) { c.ChainID, err = strconv.ParseInt(v, 10, 64); return })
	parse("ORACLE_GAS_LIMIT", func(v string) (err error) { c.GasLimit, err = strconv.ParseUint(v, 10, 64); return })
	parse("ORACLE_WORKERS", func(v string) (err error) { c.Workers, err = strconv.Atoi(v); return })
	parse("ORACLE_VERIFY", func(v string) (err error) { c.Verify, err = strconv.ParseBool(v); return })
	parse("ORACLE_INTERVAL", func(v string) (err error) { c.Interval, err = time.ParseDuration(v); return })
	parse("ORACLE_RECEIPT_TIMEOUT", func(v string) (err error) { c.ReceiptTimeout, err = time.ParseDuration(v); return })
	parse("PREDICT_TIMEOUT", func(v string) (err error) { c.PredictTimeout, err = time.ParseDuration(v); return })
	return errors.Join(errs...)
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate reports every configuration error that must stop the process.
// Missing chain settings are not errors: the oracle then runs read-only.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, a ...any) { errs = append(errs, fmt.Errorf("config: "+format, a...)) }

	if c.PredictURL == "" {
		bad("ml_api_url is required")
	} else if u, err := url.Parse(c.PredictURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		bad("ml_api_url %q is not an http(s) url", c.PredictURL)
	}
	if c.PredictTimeout <= 0 {
		bad("predict_timeout must be positive")
	}
	if c.Contract != "" {
		if _, err := address.Parse(c.Contract); err != nil {
			bad("contract_address: %w", err)
		}
		if c.RPCURL == "" {
			bad("contract_address set without rpc_url")
		}
	}
	if c.PrivateKey != "" {
		if _, err := chain.ParseKey(c.PrivateKey); err != nil {
			bad("private_key: %w", err)
		}
	}
	if c.GasLimit == 0 {
		bad("gas_limit must be positive")
	}
	if len(c.Addresses) == 0 {
		bad("no addresses to process")
	}
	for _, a := range c.Addresses {
		if _, err := address.Parse(a); err != nil {
			bad("addresses: %w", err)
		}
	}
	if c.Interval <= 0 {
		bad("interval must be positive")
	}
	if c.Workers < 1 {
		bad("workers must be at least 1")
	}
	if c.FallbackConfidence > 100 {
		bad("fallback_confidence must be within 0..100")
	}
	if c.ReputationScore > 10000 {
		bad("reputation_score must be within 0..10000")
	}
	return errors.Join(errs...)
}

// CanWrite reports whether commits are signed; otherwise the oracle only predicts.
func (c Config) CanWrite() bool { return c.PrivateKey != "" && c.Contract != "" }

// WorkingSet returns the lower-case addresses without duplicates, in order.
// Invalid entries are dropped; Validate reports them.
func (c Config) WorkingSet() []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range c.Addresses {
		lower, err := address.Normalize(a)
		if err != nil || seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
	}
	return out
}

// String renders the configuration with secrets masked.
func (c Config) String() string {
	mode := "read-only"
	if c.CanWrite() {
		mode = "write"
	}
	return fmt.Sprintf("ml_api=%s rpc=%s contract=%s key=%s mode=%s addresses=%d interval=%s workers=%d verify=%v kafka=%v pg=%s journal=%s redis=%s status=%s",
		c.PredictURL, obs.RedactURL(c.RPCURL), c.Contract, secretState(c.PrivateKey), mode,
		len(c.Addresses), c.Interval, c.Workers, c.Verify, c.KafkaBrokers,
		obs.RedactURL(c.PGDSN), c.JournalPath, obs.RedactURL(c.RedisURL), c.StatusAddr)
}

func secretState(s string) string {
	if s == "" {
		return "unset"
	}
	return "set"
}
