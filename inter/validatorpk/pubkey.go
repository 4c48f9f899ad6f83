// Package validatorpk holds the public keys that sign time chain blocks.
//
// A key is a type byte followed by the raw key material, so further signature
// schemes can be added without changing the block encoding. Only secp256k1 is
// supported today.
package validatorpk

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// secp256k1SigLen is [R || S || V].
const secp256k1SigLen = 65

// PubKey is a typed signer public key.
type PubKey struct {
	// Type identifies the signature scheme.
	Type uint8
	// Raw is the key material, the 65-byte uncompressed point for secp256k1.
	Raw []byte
}

// Types lists the supported key types.
var Types = struct {
	Secp256k1 uint8
}{
	Secp256k1: 0xc0,
}

var (
	errEmptyPubKey = errors.New("empty pubkey")
	errUnknownType = errors.New("unknown pubkey type")
)

// FromECDSA wraps a secp256k1 public key.
func FromECDSA(pub *ecdsa.PublicKey) PubKey {
	return PubKey{
		Type: Types.Secp256k1,
		Raw:  crypto.FromECDSAPub(pub),
	}
}

// String returns "0x" followed by the hex of Bytes().
func (pk PubKey) String() string {
	return "0x" + common.Bytes2Hex(pk.Bytes())
}

// Bytes returns [Type] + Raw.
func (pk PubKey) Bytes() []byte {
	return append([]byte{pk.Type}, pk.Raw...)
}

// Verify reports whether sig is a valid signature of the 32-byte digest by
// this key. Malformed keys and signatures simply fail.
func (pk PubKey) Verify(digest, sig []byte) bool {
	switch pk.Type {
	case Types.Secp256k1:
		if len(sig) != secp256k1SigLen || len(digest) != 32 || len(pk.Raw) == 0 {
			return false
		}
		return crypto.VerifySignature(pk.Raw, digest, sig[:secp256k1SigLen-1])
	default:
		return false
	}
}

// FromString parses a hex string, with or without the "0x" prefix.
func FromString(str string) (PubKey, error) {
	return FromBytes(common.FromHex(str))
}

// FromBytes parses [Type] + Raw.
func FromBytes(b []byte) (PubKey, error) {
	if len(b) == 0 {
		return PubKey{}, errEmptyPubKey
	}
	if b[0] != Types.Secp256k1 {
		return PubKey{}, errUnknownType
	}
	return PubKey{b[0], common.CopyBytes(b[1:])}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (pk *PubKey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (pk *PubKey) UnmarshalText(input []byte) error {
	res, err := FromString(string(input))
	if err != nil {
		return err
	}
	*pk = res
	return nil
}
