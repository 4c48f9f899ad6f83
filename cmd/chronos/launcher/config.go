// This file maps defaults, the YAML config file, CHRONOS_ environment
// variables and CLI flags onto the launcher Config, in that order.

package launcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-chronos/chronos"
	"github.com/rony4d/go-chronos/logger"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates sections: CHRONOS_TICKER__INTERVAL=30s.
const EnvPrefix = "CHRONOS_"

// Config aggregates every subsystem’s configuration the launcher needs.
type Config struct {
	Node    NodeConfig    `koanf:"node"`
	Network NetworkConfig `koanf:"network"`
	Store   StoreConfig   `koanf:"store"`
	VDF     VDFConfig     `koanf:"vdf"`
	Metrics MetricsConfig `koanf:"metrics"`
	Logging LoggingConfig `koanf:"log"`
	Ticker  TickerConfig  `koanf:"ticker"`
}

type NodeConfig struct {
	DataDir     string `koanf:"datadir"`
	Name        string `koanf:"name"`
	Retention   int    `koanf:"retention"`
	VerifyEvery int    `koanf:"verify_every"`
}

func (c *NodeConfig) Validate() error {
	if c.DataDir == "" {
		return errors.New("datadir not set")
	}
	if c.Retention < 0 {
		return fmt.Errorf("negative retention %d", c.Retention)
	}
	if c.VerifyEvery < 0 {
		return fmt.Errorf("negative verify_every %d", c.VerifyEvery)
	}
	return nil
}

type NetworkConfig struct {
	Name string `koanf:"name"`
}

// Rules returns the rules preset the network name selects.
func (c *NetworkConfig) Rules() (chronos.Rules, error) {
	return chronos.RulesByName(c.Name)
}

func (c *NetworkConfig) Validate() error {
	rules, err := c.Rules()
	if err != nil {
		return err
	}
	return rules.Validate()
}

type StoreConfig struct {
	Path   string `koanf:"path"`
	Memory bool   `koanf:"memory"`
}

func (c *StoreConfig) Validate() error {
	if !c.Memory && c.Path == "" {
		return errors.New("store path not set")
	}
	return nil
}

type VDFConfig struct {
	// SignerKey is a hex secp256k1 key. Empty uses <datadir>/nodekey.
	SignerKey string `koanf:"signer_key"`
}

func (c *VDFConfig) Validate() error {
	if c.SignerKey != "" && len(strings.TrimPrefix(c.SignerKey, "0x")) != 64 {
		return errors.New("signer key must be 32 hex bytes")
	}
	return nil
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Addr == "" {
		return errors.New("metrics enabled without an address")
	}
	return nil
}

type LoggingConfig struct {
	Verbosity int    `koanf:"verbosity"`
	Format    string `koanf:"format"`
	Color     bool   `koanf:"color"`
	SentryDSN string `koanf:"sentry_dsn"`
}

func (c *LoggingConfig) Validate() error {
	if c.Verbosity < 0 || c.Verbosity > 5 {
		return fmt.Errorf("log verbosity %d out of range [0, 5]", c.Verbosity)
	}
	switch c.Format {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("unknown log format %q", c.Format)
}

func (c *LoggingConfig) loggerConfig() logger.Config {
	return logger.Config{
		Verbosity: c.Verbosity,
		Format:    c.Format,
		Color:     c.Color,
		SentryDSN: c.SentryDSN,
	}
}

type TickerConfig struct {
	Interval time.Duration `koanf:"interval"`
}

func (c *TickerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("tick interval %v must be positive", c.Interval)
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node config: %w", err)
	}
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("network config: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store config: %w", err)
	}
	if err := c.VDF.Validate(); err != nil {
		return fmt.Errorf("vdf config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("log config: %w", err)
	}
	if err := c.Ticker.Validate(); err != nil {
		return fmt.Errorf("ticker config: %w", err)
	}
	return nil
}

// StorePath is the database directory.
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(c.Node.DataDir, c.Store.Path)
}

// -----------------------------------------------------------------------------
// Default config + builders
// -----------------------------------------------------------------------------

//	defaultConfig builds the Config from DefaultConfig in defaults.go so the two stay in sync.

func defaultConfig() Config {
	d := DefaultConfig()
	return Config{
		Node: NodeConfig{
			DataDir:     resolvePath(d.Node.DataDir),
			Name:        d.Node.Name,
			Retention:   d.Node.Retention,
			VerifyEvery: d.Node.VerifyEvery,
		},
		Network: NetworkConfig{
			Name: d.Network.Name,
		},
		Store: StoreConfig{
			Path:   d.Store.Path,
			Memory: d.Store.Memory,
		},
		Metrics: MetricsConfig{
			Enabled: d.Metrics.Enable,
			Addr:    d.Metrics.Addr,
		},
		Logging: LoggingConfig{
			Verbosity: d.Logging.Verbosity,
			Format:    d.Logging.Format,
			Color:     d.Logging.Color,
		},
		Ticker: TickerConfig{
			Interval: d.Ticker.Interval,
		},
	}
}

// MakeAllConfigs merges defaults, the optional config file, the environment
// and CLI overrides into a single validated config, creating the datadir.

func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if err := loadLayers(stringFlag(ctx, "config"), &cfg); err != nil {
		return Config{}, err
	}

	applyCLIOverrides(ctx, &cfg)
	cfg.Node.DataDir = resolvePath(cfg.Node.DataDir)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	if err := ensureDir(cfg.Node.DataDir); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// -----------------------------------------------------------------------------
// Config-file / env / CLI wiring
// -----------------------------------------------------------------------------

// loadLayers merges the YAML file at path, when set, and then the CHRONOS_
// environment into cfg. Keys absent from both keep their current value.
func loadLayers(path string, cfg *Config) error {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(resolvePath(path)), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		// `__` is used as a hierarchy delimiter.
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return fmt.Errorf("failed to load environment: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if isSet(ctx, "datadir") {
		cfg.Node.DataDir = resolvePath(stringFlag(ctx, "datadir"))
	}
	if isSet(ctx, "identity") {
		cfg.Node.Name = stringFlag(ctx, "identity")
	}
	if isSet(ctx, "retention") {
		cfg.Node.Retention = intFlag(ctx, "retention")
	}

	if isSet(ctx, "network") {
		cfg.Network.Name = stringFlag(ctx, "network")
	}
	if isSet(ctx, "store.memory") {
		cfg.Store.Memory = boolFlag(ctx, "store.memory")
	}
	if isSet(ctx, "signer.key") {
		cfg.VDF.SignerKey = stringFlag(ctx, "signer.key")
	}

	if isSet(ctx, "metrics") {
		cfg.Metrics.Enabled = boolFlag(ctx, "metrics")
	}
	if isSet(ctx, "metrics.addr") {
		cfg.Metrics.Addr = stringFlag(ctx, "metrics.addr")
	}

	if isSet(ctx, "log.format") {
		cfg.Logging.Format = stringFlag(ctx, "log.format")
	}
	if isSet(ctx, "log.verbosity") {
		cfg.Logging.Verbosity = intFlag(ctx, "log.verbosity")
	}
	if isSet(ctx, "log.color") {
		cfg.Logging.Color = boolFlag(ctx, "log.color")
	}
	if isSet(ctx, "sentry.dsn") {
		cfg.Logging.SentryDSN = stringFlag(ctx, "sentry.dsn")
	}

	if isSet(ctx, "tick.interval") {
		cfg.Ticker.Interval = durationFlag(ctx, "tick.interval")
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// The node flags are global; subcommands see them through the parent context.

func isSet(ctx *cli.Context, name string) bool {
	return ctx.IsSet(name) || ctx.GlobalIsSet(name)
}

func stringFlag(ctx *cli.Context, name string) string {
	if ctx.IsSet(name) {
		return ctx.String(name)
	}
	return ctx.GlobalString(name)
}

func intFlag(ctx *cli.Context, name string) int {
	if ctx.IsSet(name) {
		return ctx.Int(name)
	}
	return ctx.GlobalInt(name)
}

func boolFlag(ctx *cli.Context, name string) bool {
	if ctx.IsSet(name) {
		return ctx.Bool(name)
	}
	return ctx.GlobalBool(name)
}

func durationFlag(ctx *cli.Context, name string) time.Duration {
	if ctx.IsSet(name) {
		return ctx.Duration(name)
	}
	return ctx.GlobalDuration(name)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
