// Package faults defines the error taxonomy shared by every consensus component.
//
// Each failure belongs to exactly one Kind. Packages declare their own sentinel
// errors with New and callers classify them with errors.Is against the Kind:
//
//	if errors.Is(err, faults.Chain) { ... }
//
// All kinds are recoverable except Corruption, which halts checkpoint
// acceptance until an operator restores a known-good state.
package faults

// Kind classifies an error. A Kind is itself an error so it can be the target
// of errors.Is.
type Kind string

func (k Kind) Error() string {
	return string(k)
}

const (
	// Crypto covers invalid group elements and malformed group parameters.
	Crypto Kind = "crypto error"
	// Proof covers proofs that are well formed but do not verify.
	Proof Kind = "proof error"
	// Chain covers broken prev-hash linkage, non-monotonic timestamps and
	// proofs that do not chain from the expected prior output.
	Chain Kind = "chain error"
	// State covers operations on unknown entities.
	State Kind = "state error"
	// Transition covers illegal time authority transitions.
	Transition Kind = "transition error"
	// Corruption is persistent-storage corruption. It is the only fatal kind.
	Corruption Kind = "storage corruption"
)

// Error is a sentinel error tagged with a Kind.
type Error struct {
	Kind Kind
	Msg  string
}

// New returns a sentinel error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (e *Error) Error() string {
	return e.Msg
}

// Is reports whether target is the Kind of e (or e itself).
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return t == e.Kind
	case *Error:
		return t == e
	}
	return false
}

// KindOf returns the kind of the first tagged error found in err's chain,
// or an empty Kind if there is none.
func KindOf(err error) Kind {
	for _, k := range []Kind{Corruption, Crypto, Proof, Chain, State, Transition} {
		if is(err, k) {
			return k
		}
	}
	return ""
}

// IsFatal reports whether err must halt checkpoint acceptance.
func IsFatal(err error) bool {
	return is(err, Corruption)
}
