package config

import (
	"flag"
	"time"
)

// Flags binds command-line overrides. Only flags given on the command line
// override values from the file or the environment.
type Flags struct {
	fs *flag.FlagSet

	ConfigPath string
	EnvFile    string

	predictURL string
	rpcURL     string
	contract   string
	addresses  string
	interval   time.Duration
	workers    int
	verify     bool
	statusAddr string
	journal    string
	brokers    string
	topic      string
}

func BindFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	d := Default()
	fs.StringVar(&f.ConfigPath, "config", "", "yaml config file (optional)")
	fs.StringVar(&f.EnvFile, "env-file", ".env", "dotenv file, ignored when missing")
	fs.StringVar(&f.predictURL, "ml-api-url", d.PredictURL, "prediction service base url")
	fs.StringVar(&f.rpcURL, "rpc-url", d.RPCURL, "chain node json-rpc url")
	fs.StringVar(&f.contract, "contract", "", "fraud assessment contract address")
	fs.StringVar(&f.addresses, "addresses", "", "wallet addresses csv")
	fs.DurationVar(&f.interval, "interval", d.Interval, "pause between cycles")
	fs.IntVar(&f.workers, "workers", d.Workers, "addresses processed in parallel")
	fs.BoolVar(&f.verify, "verify", d.Verify, "read the assessment back after each commit")
	fs.StringVar(&f.statusAddr, "status-addr", "", "status http listen addr, empty disables")
	fs.StringVar(&f.journal, "journal", "", "rocksdb journal path, empty disables")
	fs.StringVar(&f.brokers, "brokers", "", "kafka brokers csv, empty disables")
	fs.StringVar(&f.topic, "topic", d.KafkaTopic, "kafka results topic")
	return f
}

// Apply copies the explicitly set flags onto c. Call after fs.Parse.
func (f *Flags) Apply(c *Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "ml-api-url":
			c.PredictURL = f.predictURL
		case "rpc-url":
			c.RPCURL = f.rpcURL
		case "contract":
			c.Contract = f.contract
		case "addresses":
			c.Addresses = SplitList(f.addresses)
		case "interval":
			c.Interval = f.interval
		case "workers":
			c.Workers = f.workers
		case "verify":
			c.Verify = f.verify
		case "status-addr":
			c.StatusAddr = f.statusAddr
		case "journal":
			c.JournalPath = f.journal
		case "brokers":
			c.KafkaBrokers = SplitList(f.brokers)
		case "topic":
			c.KafkaTopic = f.topic
		}
	})
}

// Resolve loads the file and environment layers, then applies the flags.
func (f *Flags) Resolve() (Config, error) {
	c, err := Load(f.ConfigPath, f.EnvFile)
	if err != nil {
		return c, err
	}
	f.Apply(&c)
	return c, nil
}
