package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// CommonFlags returns the base set of CLI flags shared across commands.

func CommonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "YAML configuration file",
		},
		cli.StringFlag{
			Name:  "datadir",
			Usage: "Data directory for the chain database and node key",
			Value: "~/.chronos",
		},
		cli.StringFlag{
			Name:  "network",
			Usage: "Network rules preset (main|test|fake)",
			Value: "main",
		},
		cli.StringFlag{
			Name:  "log.format",
			Usage: "Log output format (text|json)",
			Value: "text",
		},
		cli.IntFlag{
			Name:  "log.verbosity",
			Usage: "Logging verbosity (0=fatal,1=error,2=warn,3=info,4=debug,5=trace)",
			Value: 3,
		},
		cli.BoolFlag{
			Name:  "log.color",
			Usage: "Enable colored log output",
		},
		cli.StringFlag{
			Name:  "sentry.dsn",
			Usage: "Sentry DSN receiving errors and worse",
		},
	}
}

// MetricsFlags configures the prometheus pull endpoint.

func MetricsFlags() []cli.Flag {
	return []cli.Flag{
		cli.BoolFlag{
			Name:  "metrics",
			Usage: "Enable collection of Prometheus-compatible metrics",
		},
		cli.StringFlag{
			Name:  "metrics.addr",
			Usage: "Metrics server listening address",
			Value: "127.0.0.1:6060",
		},
	}
}
