package vdf

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rony4d/go-chronos/logger"
	"github.com/rony4d/go-chronos/metrics"
)

// ProgressFunc observes an evaluation or proof: done of total squarings.
type ProgressFunc func(done, total uint64)

// Engine evaluates, proves and verifies the delay function over one group.
//
// Evaluate is strictly sequential. Prove is serialized with itself but may
// run alongside Evaluate. Verify is stateless and safe for concurrent use.
type Engine struct {
	group Group
	rules Rules

	proveMu sync.Mutex

	progress ProgressFunc
	metrics  metrics.VDFMetrics
	log      logrus.FieldLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithProgress registers an observer called at every progress checkpoint.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// NewEngine returns an engine over g.
func NewEngine(g Group, rules Rules, opts ...Option) *Engine {
	e := &Engine{
		group:   g,
		rules:   rules,
		metrics: metrics.NewVDFMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = logger.OrDiscard(e.log).WithField("module", "vdf")
	return e
}

// Group returns the engine's group.
func (e *Engine) Group() Group {
	return e.group
}

// Rules returns the engine's parameters.
func (e *Engine) Rules() Rules {
	return e.rules
}

// InputFromPayload maps an arbitrary payload to a VDF input element.
func (e *Engine) InputFromPayload(payload []byte) (Element, error) {
	return e.group.HashToGroup(payload)
}

// Evaluate computes y = x^(2^T). The context is checked every
// ProgressInterval squarings: a cancelled evaluation returns ctx.Err() and its
// partial state is discarded.
func (e *Engine) Evaluate(ctx context.Context, x Element, iterations uint64) (*Output, error) {
	if err := e.checkIterations(iterations); err != nil {
		return nil, err
	}
	if err := e.group.Validate(x); err != nil {
		return nil, err
	}

	timer := e.metrics.EvaluateTimer()
	y := x
	err := e.run(ctx, iterations, func() {
		y = e.group.Square(y)
	})
	if err != nil {
		e.log.WithFields(logrus.Fields{"iterations": iterations, "err": err}).Debug("Evaluation cancelled")
		return nil, err
	}
	timer.ObserveDuration()

	out := &Output{Input: x, Output: y, Iterations: iterations}
	if out.InputHash, err = ElementHash(e.group, x); err != nil {
		return nil, err
	}
	if out.OutputHash, err = ElementHash(e.group, y); err != nil {
		return nil, err
	}
	return out, nil
}

// Prove builds the Wesolowski witness π = x^⌊2^T/ℓ⌋ by long division of 2^T
// by ℓ, one squaring per bit. It costs as much as Evaluate and honours the
// same cancellation points. The finished proof is verified before it is
// returned, so a y that is not x^(2^T) yields ErrInvalidProof.
func (e *Engine) Prove(ctx context.Context, x, y Element, iterations uint64) (*Proof, error) {
	if err := e.checkIterations(iterations); err != nil {
		return nil, err
	}
	if err := e.group.Validate(x); err != nil {
		return nil, err
	}
	if err := e.group.Validate(y); err != nil {
		return nil, err
	}

	e.proveMu.Lock()
	defer e.proveMu.Unlock()

	l, err := HashToPrime(e.group, x, y, iterations)
	if err != nil {
		return nil, err
	}

	// Invariant after i steps: pi = x^⌊2^i/ℓ⌋ and rem = 2^i mod ℓ.
	pi := e.group.Identity()
	rem := big.NewInt(1)
	err = e.run(ctx, iterations, func() {
		pi = e.group.Square(pi)
		rem.Lsh(rem, 1)
		if rem.Cmp(l) >= 0 {
			rem.Sub(rem, l)
			pi = e.group.Mul(pi, x)
		}
	})
	if err != nil {
		return nil, err
	}

	proof := &Proof{Input: x, Output: y, Witness: pi, Iterations: iterations}
	if proof.InputHash, err = ElementHash(e.group, x); err != nil {
		return nil, err
	}
	if proof.OutputHash, err = ElementHash(e.group, y); err != nil {
		return nil, err
	}
	if err := e.Check(x, y, proof, iterations); err != nil {
		return nil, err
	}
	return proof, nil
}

// EvaluateAndProve runs Evaluate followed by Prove.
func (e *Engine) EvaluateAndProve(ctx context.Context, x Element, iterations uint64) (*Proof, error) {
	out, err := e.Evaluate(ctx, x, iterations)
	if err != nil {
		return nil, err
	}
	return e.Prove(ctx, out.Input, out.Output, iterations)
}

// Verify reports whether proof shows y = x^(2^T). It never panics.
func (e *Engine) Verify(x, y Element, proof *Proof, iterations uint64) bool {
	ok := e.Check(x, y, proof, iterations) == nil
	e.metrics.Verified(ok)
	return ok
}

// VerifyProof verifies a self-contained proof against its own input and output.
func (e *Engine) VerifyProof(p *Proof) bool {
	if p == nil {
		return false
	}
	return e.Verify(p.Input, p.Output, p, p.Iterations)
}

// Check is Verify with a reason: ErrInvalidElement for malformed elements,
// ErrIterations for a bad T, ErrInvalidProof otherwise.
func (e *Engine) Check(x, y Element, proof *Proof, iterations uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidProof, r)
		}
	}()

	if proof == nil {
		return ErrInvalidProof
	}
	if err := e.checkIterations(iterations); err != nil {
		return err
	}
	if proof.Iterations != iterations {
		return fmt.Errorf("%w: proof for %d iterations, expected %d", ErrInvalidProof, proof.Iterations, iterations)
	}
	for _, el := range []Element{x, y, proof.Witness} {
		if err := e.group.Validate(el); err != nil {
			return err
		}
	}
	if proof.Input != nil && !e.group.Equal(proof.Input, x) {
		return fmt.Errorf("%w: input mismatch", ErrInvalidProof)
	}
	if proof.Output != nil && !e.group.Equal(proof.Output, y) {
		return fmt.Errorf("%w: output mismatch", ErrInvalidProof)
	}

	inHash, err := ElementHash(e.group, x)
	if err != nil {
		return err
	}
	outHash, err := ElementHash(e.group, y)
	if err != nil {
		return err
	}
	if inHash != proof.InputHash || outHash != proof.OutputHash {
		return fmt.Errorf("%w: hash mismatch", ErrInvalidProof)
	}

	// Past the challenge size the quotient is non-zero, so an identity
	// witness can only verify for an element of tiny order.
	if iterations >= ChallengeBits && e.group.Equal(proof.Witness, e.group.Identity()) {
		return fmt.Errorf("%w: degenerate witness", ErrInvalidProof)
	}

	l, err := HashToPrime(e.group, x, y, iterations)
	if err != nil {
		return err
	}
	r := new(big.Int).Exp(big.NewInt(2), new(big.Int).SetUint64(iterations), l)

	lhs := e.group.Mul(Pow(e.group, proof.Witness, l), Pow(e.group, x, r))
	if !e.group.Equal(lhs, y) {
		return ErrInvalidProof
	}
	return nil
}

func (e *Engine) checkIterations(iterations uint64) error {
	if iterations == 0 || (e.rules.MaxIterations != 0 && iterations > e.rules.MaxIterations) {
		return fmt.Errorf("%w: %d", ErrIterations, iterations)
	}
	return nil
}

// run calls step iterations times, checking ctx and reporting progress every
// ProgressInterval steps.
func (e *Engine) run(ctx context.Context, iterations uint64, step func()) error {
	interval := e.rules.ProgressInterval
	if interval == 0 {
		interval = iterations
	}
	var done uint64
	for done < iterations {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := interval
		if rest := iterations - done; rest < chunk {
			chunk = rest
		}
		for i := uint64(0); i < chunk; i++ {
			step()
		}
		done += chunk
		e.metrics.Squarings(chunk)
		if e.progress != nil {
			e.progress(done, iterations)
		}
	}
	return nil
}
