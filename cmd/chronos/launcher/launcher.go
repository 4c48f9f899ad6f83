package launcher

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-chronos/flags"
	"github.com/rony4d/go-chronos/logger"
	"github.com/rony4d/go-chronos/metrics"
	"github.com/rony4d/go-chronos/node"
)

func newApp() *cli.App {
	app := flags.NewApp()
	app.Flags = flags.AllFlags()
	app.Action = runNode
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "Run the time chain node (default)",
			Action: runNode,
		},
		{
			Name:  "vdf",
			Usage: "Standalone delay function evaluation and verification",
			Subcommands: []cli.Command{
				{
					Name:   "eval",
					Usage:  "Evaluate the VDF on --input and print the output hash and proof",
					Flags:  flags.VDFFlags(),
					Action: vdfEval,
				},
				{
					Name:   "verify",
					Usage:  "Verify a hex proof printed by vdf eval",
					Flags:  flags.VDFFlags(),
					Action: vdfVerify,
				},
			},
		},
		{
			Name:  "chain",
			Usage: "Inspect the persisted time chain",
			Subcommands: []cli.Command{
				{
					Name:   "verify",
					Usage:  "Reload the chain and accumulator and verify every block",
					Action: chainVerify,
				},
			},
		},
	}
	return app
}

// Launch parses args and runs the selected command.
func Launch(args []string) error {
	return newApp().Run(args)
}

func runNode(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging.loggerConfig())
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runWithContext(sigCtx, cfg, log)
}

// runWithContext runs the node loop, plus the metrics endpoint when enabled,
// until ctx is cancelled or either fails.
func runWithContext(ctx context.Context, cfg Config, log *logrus.Logger) error {
	rules, err := cfg.Network.Rules()
	if err != nil {
		return err
	}
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	signer, err := makeSigner(cfg)
	if err != nil {
		return err
	}

	n, err := node.New(node.Config{
		Rules:       rules,
		Signer:      signer,
		Store:       db,
		Log:         log.WithField("node", cfg.Node.Name),
		Retention:   cfg.Node.Retention,
		VerifyEvery: cfg.Node.VerifyEvery,
	})
	if err != nil {
		return err
	}
	defer n.Close()

	log.WithFields(logrus.Fields{
		"network": rules.Name,
		"datadir": cfg.Node.DataDir,
		"signer":  signer.PubKey().String(),
	}).Info("Starting chronos node")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.Run(gctx, cfg.Ticker.Interval)
	})
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.NewPullService(cfg.Metrics.Addr, log).Run(gctx)
		})
	}
	return g.Wait()
}
