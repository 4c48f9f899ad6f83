package timechain

import (
	"crypto/ecdsa"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/rony4d/go-chronos/inter/validatorpk"
)

// Signer signs block hashes.
type Signer interface {
	PubKey() validatorpk.PubKey
	Sign(h hash.Hash) ([]byte, error)
}

// KeySigner signs with an in-memory secp256k1 key.
type KeySigner struct {
	key *ecdsa.PrivateKey
	pub validatorpk.PubKey
}

// NewKeySigner wraps key.
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{
		key: key,
		pub: validatorpk.FromECDSA(&key.PublicKey),
	}
}

// KeySignerFromHex parses a hex-encoded secp256k1 private key.
func KeySignerFromHex(hexkey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(hexkey)
	if err != nil {
		return nil, err
	}
	return NewKeySigner(key), nil
}

// GenerateKeySigner creates a signer with a fresh random key.
func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewKeySigner(key), nil
}

func (s *KeySigner) PubKey() validatorpk.PubKey {
	return s.pub
}

func (s *KeySigner) Sign(h hash.Hash) ([]byte, error) {
	return crypto.Sign(h.Bytes(), s.key)
}

// signBlock stamps the signer and signs the block hash.
func signBlock(b Block, s Signer) error {
	h := b.BlockHeader()
	h.Signer = s.PubKey()
	sig, err := s.Sign(b.Hash())
	if err != nil {
		return err
	}
	h.Signature = sig
	return nil
}

// VerifySignature reports whether b carries a valid signature of its own hash.
func VerifySignature(b Block) bool {
	h := b.BlockHeader()
	return h.Signer.Verify(b.Hash().Bytes(), h.Signature)
}
