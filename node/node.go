// Package node wires the delay function, the time chain, the finality
// accumulator, the fork choice and the time authority into one time chain node.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-chronos/authority"
	"github.com/rony4d/go-chronos/chronos"
	"github.com/rony4d/go-chronos/faults"
	"github.com/rony4d/go-chronos/finality"
	"github.com/rony4d/go-chronos/forkchoice"
	"github.com/rony4d/go-chronos/logger"
	"github.com/rony4d/go-chronos/store"
	"github.com/rony4d/go-chronos/timechain"
	"github.com/rony4d/go-chronos/vdf"
)

// lastOutputKey holds the encoded last VDF output, the input of the next link.
const lastOutputKey = "vdf.last"

// ErrOutputMismatch is returned when the persisted VDF output does not match
// the time chain tip.
var ErrOutputMismatch = faults.New(faults.Corruption, "persisted vdf output does not match the chain tip")

// Feed supplies the external inputs of one tick. The sequence number is
// assigned by the node.
type Feed interface {
	Observe(ctx context.Context) (authority.TickInput, error)
}

// Config holds the node dependencies.
type Config struct {
	Rules  chronos.Rules
	Signer timechain.Signer
	// Store persists the chain and the accumulator. Nil keeps everything in memory.
	Store *store.Store
	Log   logrus.FieldLogger
	// Feed is polled on every step. Nil runs on the local clock only.
	Feed Feed
	// Peers reports participants and reliability per candidate tip.
	Peers func() map[hash.Hash]forkchoice.PeerReport
	// Retention is how many recent Tau1 blocks stay tracked. Zero keeps all.
	Retention int
	// VerifyEvery re-verifies the whole chain every so many steps. Zero
	// verifies on every step.
	VerifyEvery int
	// Clock stamps Tau1 blocks. Defaults to time.Now.
	Clock func() time.Time
}

// StepResult reports one finalization interval.
type StepResult struct {
	Block      *timechain.Tau1Block
	Proof      *vdf.Proof
	Sealed     []timechain.Block
	Authority  authority.Level
	Finalized  int
	Pruned     int
	Checkpoint bool
}

// lastProofCache remembers the verdict on the latest proof, which every
// tracked block checks in turn within one step.
type lastProofCache struct {
	engine *vdf.Engine

	mu   sync.Mutex
	last *vdf.Proof
	ok   bool
}

func (c *lastProofCache) VerifyProof(p *vdf.Proof) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p != nil && p == c.last {
		return c.ok
	}
	c.last, c.ok = p, c.engine.VerifyProof(p)
	return c.ok
}

// Node is a running time chain node. Step must not be called concurrently;
// the accessors are safe at any time.
type Node struct {
	cfg   Config
	rules chronos.Rules

	group     vdf.Group
	engine    *vdf.Engine
	ledger    *timechain.Ledger
	acc       *finality.Accumulator
	resolver  *forkchoice.Resolver
	authority *authority.Authority
	store     *store.Store
	ownStore  bool

	mu      sync.Mutex
	last    vdf.Element
	seq     uint64
	steps   int
	history []hash.Hash

	log logrus.FieldLogger
}

// New builds a node, reloading the chain and accumulator from the store.
func New(cfg Config) (*Node, error) {
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	if cfg.Signer == nil {
		return nil, errors.New("node signer is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	log := logger.OrDiscard(cfg.Log)

	n := &Node{
		cfg:   cfg,
		rules: cfg.Rules,
		store: cfg.Store,
		log:   log.WithField("module", "node"),
	}
	if n.store == nil {
		db, err := store.OpenMemory()
		if err != nil {
			return nil, err
		}
		n.store, n.ownStore = db, true
	}

	group, err := vdf.NewGroup(cfg.Rules.VDF)
	if err != nil {
		return nil, err
	}
	n.group = group
	n.engine = vdf.NewEngine(group, cfg.Rules.VDF, vdf.WithLogger(log))
	n.resolver = forkchoice.NewResolver(log)
	n.authority = authority.New(cfg.Rules.Authority, authority.WithLogger(log))
	n.acc = finality.New(cfg.Rules.Finality, &lastProofCache{engine: n.engine},
		finality.WithStore(n.store, group),
		finality.WithLogger(log),
		finality.WithClock(cfg.Clock),
	)

	if _, err := n.acc.Load(); err != nil {
		return nil, err
	}
	n.ledger, err = timechain.LoadLedger(cfg.Rules.Ledger, cfg.Signer, n.store, timechain.WithLogger(log))
	if err != nil {
		n.acc.Halt(err)
		return nil, err
	}
	if err := n.loadLastOutput(); err != nil {
		n.acc.Halt(err)
		return nil, err
	}
	for i := 0; i < n.ledger.Len(timechain.Tau1); i++ {
		n.history = append(n.history, n.ledger.Block(timechain.Tau1, idx.Block(i)).Hash())
	}
	n.trimHistory()

	n.authority.OnTransition(func(from, to authority.Level) {
		n.log.WithFields(logrus.Fields{
			"from":         from,
			"to":           to,
			"vdfFinalizes": to != authority.AnchorActive,
		}).Info("Finalization source changed")
	})
	return n, nil
}

func (n *Node) genesisInput() (vdf.Element, error) {
	return n.engine.InputFromPayload([]byte("CHRONOS_GENESIS/" + n.rules.Name))
}

func (n *Node) loadLastOutput() error {
	tip, _ := n.ledger.Tip(timechain.Tau1).(*timechain.Tau1Block)
	if tip == nil {
		x, err := n.genesisInput()
		if err != nil {
			return err
		}
		n.last = x
		return nil
	}
	x, err := n.persistedOutput()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrOutputMismatch, err)
	}
	matches := false
	if x != nil {
		h, err := vdf.ElementHash(n.group, x)
		if err != nil {
			return err
		}
		matches = h == tip.VDFOutput
	}
	if matches {
		n.last = x
	} else if err := n.recoverLastOutput(tip, x); err != nil {
		return err
	}
	// the tip may have been appended without being registered
	_, err = n.acc.RegisterBlock(tip.Hash(), tip.VDFOutput)
	return err
}

func (n *Node) persistedOutput() (vdf.Element, error) {
	raw, err := n.store.GetMeta(lastOutputKey)
	if err != nil {
		return nil, err
	}
	return n.group.Decode(raw)
}

// recoverLastOutput handles a stop between appending the tip and recording its
// output: the persisted output, or the genesis input for the first block, must
// be the output of the block before the tip and must evaluate to the tip's.
func (n *Node) recoverLastOutput(tip *timechain.Tau1Block, prev vdf.Element) error {
	var want hash.Hash
	if tip.Number == 0 {
		x, err := n.genesisInput()
		if err != nil {
			return err
		}
		prev = x
	} else {
		if prev == nil {
			return ErrOutputMismatch
		}
		want = n.ledger.Block(timechain.Tau1, tip.Number-1).(*timechain.Tau1Block).VDFOutput
	}
	h, err := vdf.ElementHash(n.group, prev)
	if err != nil {
		return err
	}
	if tip.Number > 0 && h != want {
		return ErrOutputMismatch
	}

	n.log.WithField("number", tip.Number).Warn("Recomputing the output of the last block")
	out, err := n.engine.Evaluate(context.Background(), prev, n.rules.VDF.Iterations)
	if err != nil {
		return err
	}
	if out.OutputHash != tip.VDFOutput {
		return ErrOutputMismatch
	}
	raw, err := n.group.Encode(out.Output)
	if err != nil {
		return err
	}
	if err := n.store.PutMeta(lastOutputKey, raw); err != nil {
		return err
	}
	n.last = out.Output
	return nil
}

// Close releases the store when the node opened it.
func (n *Node) Close() error {
	if n.ownStore {
		return n.store.Close()
	}
	return nil
}

// Ledger returns the node's time chain.
func (n *Node) Ledger() *timechain.Ledger { return n.ledger }

// Accumulator returns the node's finality accumulator.
func (n *Node) Accumulator() *finality.Accumulator { return n.acc }

// Authority returns the node's time authority.
func (n *Node) Authority() *authority.Authority { return n.authority }

// Engine returns the node's VDF engine.
func (n *Node) Engine() *vdf.Engine { return n.engine }

// Step runs one finalization interval: authority tick, next VDF link,
// checkpoints, the new Tau1 block and any higher seals, then pruning.
func (n *Node) Step(ctx context.Context, payloads [][]byte) (*StepResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.acc.Halted(); err != nil {
		return nil, err
	}

	level, err := n.tick(ctx)
	if err != nil {
		return nil, err
	}
	res := &StepResult{Authority: level}

	proof, err := n.engine.EvaluateAndProve(ctx, n.last, n.rules.VDF.Iterations)
	if err != nil {
		return nil, err
	}
	res.Proof = proof

	if n.authority.VDFFinalizes() {
		res.Checkpoint = true
		res.Finalized = n.checkpoint(proof)
	}

	block, err := n.ledger.AppendEvent(timechain.Event{
		Timestamp: n.timestamp(),
		VDFOutput: proof.OutputHash,
		Payloads:  payloads,
	})
	if err != nil {
		return nil, err
	}
	res.Block = block
	raw, err := n.group.Encode(proof.Output)
	if err != nil {
		return nil, err
	}
	if err := n.store.PutMeta(lastOutputKey, raw); err != nil {
		return nil, err
	}
	n.last = proof.Output

	if res.Sealed, err = n.ledger.SealAll(); err != nil {
		return nil, err
	}
	if _, err := n.acc.RegisterBlock(block.Hash(), proof.OutputHash); err != nil {
		return nil, err
	}
	n.history = append(n.history, block.Hash())
	res.Pruned = n.prune()

	n.steps++
	if n.cfg.VerifyEvery == 0 || n.steps%n.cfg.VerifyEvery == 0 {
		if err := n.ledger.VerifyChain(); err != nil {
			n.acc.Halt(err)
			return res, err
		}
	}

	n.log.WithFields(logrus.Fields{
		"number":    block.Number,
		"block":     block.Hash().Hex(),
		"authority": level,
		"finalized": res.Finalized,
		"sealed":    len(res.Sealed),
	}).Debug("Step done")
	return res, nil
}

func (n *Node) tick(ctx context.Context) (authority.Level, error) {
	var in authority.TickInput
	if n.cfg.Feed != nil {
		var err error
		if in, err = n.cfg.Feed.Observe(ctx); err != nil {
			n.log.WithError(err).Warn("Anchor feed unavailable")
			in = authority.TickInput{}
		}
	}
	n.seq++
	in.Seq = n.seq
	if in.Now.IsZero() {
		in.Now = n.cfg.Clock()
	}
	return n.authority.Tick(ctx, in)
}

// checkpoint adds proof to every tracked block that expects it and returns
// how many accepted it.
func (n *Node) checkpoint(proof *vdf.Proof) int {
	accepted := 0
	for _, h := range n.acc.Tracked() {
		s, ok := n.acc.Snapshot(h)
		if !ok || s.ExpectedInput() != proof.InputHash {
			continue
		}
		if _, err := n.acc.AddCheckpoint(h, proof); err != nil {
			n.log.WithError(err).WithField("block", h.Hex()).Warn("Checkpoint rejected")
			continue
		}
		accepted++
	}
	return accepted
}

func (n *Node) prune() int {
	if n.cfg.Retention <= 0 || len(n.history) <= n.cfg.Retention {
		return 0
	}
	n.trimHistory()
	keep := make(map[hash.Hash]struct{}, len(n.history))
	for _, h := range n.history {
		keep[h] = struct{}{}
	}
	return n.acc.PruneOldStates(keep)
}

func (n *Node) trimHistory() {
	if n.cfg.Retention > 0 && len(n.history) > n.cfg.Retention {
		n.history = append([]hash.Hash(nil), n.history[len(n.history)-n.cfg.Retention:]...)
	}
}

func (n *Node) timestamp() uint64 {
	ts := uint64(n.cfg.Clock().Unix())
	if tip := n.ledger.Tip(timechain.Tau1); tip != nil && tip.BlockHeader().Timestamp > ts {
		return tip.BlockHeader().Timestamp
	}
	return ts
}

// Tip returns the preferred tracked block: highest finality first, then the
// fork choice cascade.
func (n *Node) Tip() (hash.Hash, error) {
	var peers map[hash.Hash]forkchoice.PeerReport
	if n.cfg.Peers != nil {
		peers = n.cfg.Peers()
	}
	return n.resolver.SelectTip(n.acc, n.acc.Tracked(), peers)
}

// Run calls Step every interval until ctx is cancelled. It stops early on a
// fatal error.
func (n *Node) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	n.log.WithFields(logrus.Fields{
		"network":  n.rules.Name,
		"interval": interval,
		"tau1":     n.ledger.Len(timechain.Tau1),
	}).Info("Time chain node started")

	for {
		select {
		case <-ctx.Done():
			n.log.Info("Time chain node stopped")
			return nil
		case <-ticker.C:
		}
		if _, err := n.Step(ctx, nil); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if faults.IsFatal(err) {
				n.log.WithError(err).Error("Fatal time chain error")
				return err
			}
			n.log.WithError(err).Warn("Step failed")
		}
	}
}
