package flags

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// NodeFlags holds knobs specific to the local node instance (identity, signer, loop, retention).

func NodeFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "identity",
			Usage: "Custom node name used in logs",
		},
		cli.StringFlag{
			Name:  "signer.key",
			Usage: "Hex secp256k1 key signing time blocks (defaults to <datadir>/nodekey)",
		},
		cli.DurationFlag{
			Name:  "tick.interval",
			Usage: "Finalization interval between two VDF checkpoints",
			Value: time.Minute,
		},
		cli.IntFlag{
			Name:  "retention",
			Usage: "Number of recent Tau1 blocks tracked by the finality accumulator (0 keeps all)",
			Value: 1000,
		},
		cli.BoolFlag{
			Name:  "store.memory",
			Usage: "Keep the chain in memory only",
		},
	}
}

// VDFFlags are the arguments of the standalone vdf commands.

func VDFFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "input",
			Usage: "Payload hashed into the group as the VDF input",
		},
		cli.Uint64Flag{
			Name:  "iterations",
			Usage: "Number of squarings (defaults to the network checkpoint iterations)",
		},
		cli.StringFlag{
			Name:  "proof",
			Usage: "Hex proof encoding as printed by vdf eval",
		},
	}
}
