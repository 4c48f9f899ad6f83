package timechain

import (
	"github.com/Fantom-foundation/lachesis-base/hash"
)

// MerkleRoot computes the binary Merkle root of leaves. The leaf list is
// padded to a power of two by repeating its last leaf, and each parent is
// SHA-256(left || right). No leaves give the zero hash and a single leaf is
// its own root.
func MerkleRoot(leaves []hash.Hash) hash.Hash {
	if len(leaves) == 0 {
		return hash.Hash{}
	}
	level := padLeaves(leaves)
	for len(level) > 1 {
		next := make([]hash.Hash, len(level)/2)
		for i := range next {
			next[i] = hash.Of(level[2*i].Bytes(), level[2*i+1].Bytes())
		}
		level = next
	}
	return level[0]
}

// MerkleProof returns the sibling path of leaves[index], bottom-up.
func MerkleProof(leaves []hash.Hash, index int) []hash.Hash {
	if index < 0 || index >= len(leaves) {
		return nil
	}
	level := padLeaves(leaves)
	var path []hash.Hash
	for len(level) > 1 {
		path = append(path, level[index^1])
		next := make([]hash.Hash, len(level)/2)
		for i := range next {
			next[i] = hash.Of(level[2*i].Bytes(), level[2*i+1].Bytes())
		}
		level = next
		index /= 2
	}
	return path
}

// VerifyMerkleProof checks that leaf sits at index under root.
func VerifyMerkleProof(root, leaf hash.Hash, index int, path []hash.Hash) bool {
	if index < 0 || index >= 1<<uint(len(path)) {
		return false
	}
	acc := leaf
	for _, sibling := range path {
		if index%2 == 0 {
			acc = hash.Of(acc.Bytes(), sibling.Bytes())
		} else {
			acc = hash.Of(sibling.Bytes(), acc.Bytes())
		}
		index /= 2
	}
	return acc == root
}

func padLeaves(leaves []hash.Hash) []hash.Hash {
	n := 1
	for n < len(leaves) {
		n <<= 1
	}
	padded := make([]hash.Hash, n)
	copy(padded, leaves)
	for i := len(leaves); i < n; i++ {
		padded[i] = leaves[len(leaves)-1]
	}
	return padded
}
