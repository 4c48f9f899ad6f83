package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-chronos/finality"
	"github.com/rony4d/go-chronos/store"
	"github.com/rony4d/go-chronos/timechain"
	"github.com/rony4d/go-chronos/vdf"
)

// nodeKeyFile holds the signer key under the datadir when none is configured.
const nodeKeyFile = "nodekey"

var errProofRejected = errors.New("proof rejected")

func openStore(cfg Config) (*store.Store, error) {
	if cfg.Store.Memory {
		return store.OpenMemory()
	}
	return store.Open(cfg.StorePath())
}

// makeSigner returns the configured signer key, or the datadir node key,
// generating it on first start. In-memory nodes get an ephemeral key.
func makeSigner(cfg Config) (*timechain.KeySigner, error) {
	if cfg.VDF.SignerKey != "" {
		return timechain.KeySignerFromHex(strings.TrimPrefix(cfg.VDF.SignerKey, "0x"))
	}
	if cfg.Store.Memory {
		return timechain.GenerateKeySigner()
	}
	path := filepath.Join(cfg.Node.DataDir, nodeKeyFile)
	key, err := crypto.LoadECDSA(path)
	if err == nil {
		return timechain.NewKeySigner(key), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load node key %s: %w", path, err)
	}
	if key, err = crypto.GenerateKey(); err != nil {
		return nil, err
	}
	if err := crypto.SaveECDSA(path, key); err != nil {
		return nil, fmt.Errorf("save node key %s: %w", path, err)
	}
	return timechain.NewKeySigner(key), nil
}

func makeEngine(cfg Config) (*vdf.Engine, error) {
	rules, err := cfg.Network.Rules()
	if err != nil {
		return nil, err
	}
	g, err := vdf.NewGroup(rules.VDF)
	if err != nil {
		return nil, err
	}
	return vdf.NewEngine(g, rules.VDF), nil
}

func vdfEval(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	engine, err := makeEngine(cfg)
	if err != nil {
		return err
	}
	if !ctx.IsSet("input") {
		return errors.New("--input is required")
	}
	iterations := engine.Rules().Iterations
	if ctx.IsSet("iterations") {
		iterations = ctx.Uint64("iterations")
	}

	x, err := engine.InputFromPayload([]byte(ctx.String("input")))
	if err != nil {
		return err
	}
	proof, err := engine.EvaluateAndProve(context.Background(), x, iterations)
	if err != nil {
		return err
	}
	raw, err := vdf.EncodeProof(engine.Group(), proof)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.Writer, "input: %s\n", proof.InputHash.Hex())
	fmt.Fprintf(ctx.App.Writer, "output: %s\n", proof.OutputHash.Hex())
	fmt.Fprintf(ctx.App.Writer, "iterations: %d\n", proof.Iterations)
	fmt.Fprintf(ctx.App.Writer, "proof: %s\n", hexutil.Encode(raw))
	return nil
}

func vdfVerify(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	engine, err := makeEngine(cfg)
	if err != nil {
		return err
	}
	raw, err := hexutil.Decode(ctx.String("proof"))
	if err != nil {
		return fmt.Errorf("--proof: %w", err)
	}
	proof, err := vdf.DecodeProof(engine.Group(), raw)
	if err != nil {
		return err
	}
	ok := engine.VerifyProof(proof)
	fmt.Fprintf(ctx.App.Writer, "valid: %t\n", ok)
	if !ok {
		return errProofRejected
	}
	return nil
}

func chainVerify(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	if cfg.Store.Memory {
		return errors.New("nothing to verify in an in-memory store")
	}
	rules, err := cfg.Network.Rules()
	if err != nil {
		return err
	}
	g, err := vdf.NewGroup(rules.VDF)
	if err != nil {
		return err
	}
	db, err := store.Open(cfg.StorePath())
	if err != nil {
		return err
	}
	defer db.Close()

	// Loaded blocks carry their own signer keys; the ephemeral signer never signs here.
	signer, err := timechain.GenerateKeySigner()
	if err != nil {
		return err
	}
	ledger, err := timechain.LoadLedger(rules.Ledger, signer, db)
	if err != nil {
		return err
	}
	tracked, err := finality.New(rules.Finality, vdf.NewEngine(g, rules.VDF), finality.WithStore(db, g)).Load()
	if err != nil {
		return err
	}

	fmt.Fprintf(ctx.App.Writer, "tau1=%d tau2=%d tau3=%d tau4=%d tracked=%d\n",
		ledger.Len(timechain.Tau1),
		ledger.Len(timechain.Tau2),
		ledger.Len(timechain.Tau3),
		ledger.Len(timechain.Tau4),
		tracked,
	)
	return nil
}
