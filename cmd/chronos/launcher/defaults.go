package launcher

import "time"

// Defaults bundles the baseline configuration values the launcher will use
// before config files, environment and flags override them.

type Defaults struct {
	Node    NodeDefaults
	Network NetworkDefaults
	Store   StoreDefaults
	Metrics MetricsDefaults
	Logging LoggingDefaults
	Ticker  TickerDefaults
}

// NodeDefaults captures top-level node settings (datadir, identity, etc).

type NodeDefaults struct {
	DataDir     string //	Filesystem root where the node stores the chain database and its node key.
	Name        string //	Human-readable node identity used in logs.
	Retention   int    //	Number of recent Tau1 blocks whose accumulated checkpoints stay tracked.
	VerifyEvery int    //	Full chain re-verification period, in steps. 0 verifies on every step.
}

// NetworkDefaults selects the rules preset.
type NetworkDefaults struct {
	Name string //	Rules preset: main, test or fake. All nodes of one network must agree on it.
}

// StoreDefaults configures the chain database.
type StoreDefaults struct {
	Path   string //	Database directory, relative to DataDir unless absolute.
	Memory bool   //	Keep everything in memory; nothing survives a restart.
}

type MetricsDefaults struct {
	Enable bool   //	Toggle for the metrics server exposing Prometheus-compatible metrics.
	Addr   string //	host:port the metrics server binds to.
}

// LoggingDefaults controls log verbosity/format.
type LoggingDefaults struct {
	Verbosity int    //	Log level numeric (0=fatal, 1=error, 2=warn, 3=info, 4=debug, 5=trace).
	Format    string //	Log output format (text vs json).
	Color     bool   //	Whether to use ANSI color codes in logs.
}

// TickerDefaults drives the node loop.
type TickerDefaults struct {
	Interval time.Duration //	Time between two finalization steps. One checkpoint per UTC minute on main.
}

// DefaultConfig returns a fully populated Defaults instance.

func DefaultConfig() Defaults {
	return Defaults{
		Node: NodeDefaults{
			DataDir:     "~/.chronos",
			Name:        "go-chronos",
			Retention:   1000,
			VerifyEvery: 100,
		},
		Network: NetworkDefaults{
			Name: "main",
		},
		Store: StoreDefaults{
			Path: "chaindata",
		},
		Metrics: MetricsDefaults{
			Enable: false,
			Addr:   "127.0.0.1:6060",
		},
		Logging: LoggingDefaults{
			Verbosity: 3,
			Format:    "text",
			Color:     true,
		},
		Ticker: TickerDefaults{
			Interval: time.Minute,
		},
	}
}
