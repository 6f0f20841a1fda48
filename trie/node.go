// Package trie implements a nibble-partitioned, content-addressed
// authenticated Patricia trie. Every node is hashed with blake2b-256 and
// stored under that hash in a backing key-value map, so two trie states
// with identical content always resolve to the same root regardless of the
// order their keys were inserted in.
package trie

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/crypto"
)

// kind tags the three node shapes the trie can hold, mirroring the
// leaf/extension/branch distinction of a classic Patricia-Merkle trie.
type kind uint8

const (
	kindLeaf kind = iota + 1
	kindExtension
	kindBranch
)

// node is the on-disk encoding of one trie node. Only the fields relevant to
// its Kind are populated.
type node struct {
	Kind     kind          `json:"kind"`
	Path     []byte        `json:"path,omitempty"`     // leaf/extension: remaining/shared nibbles
	Value    []byte        `json:"value,omitempty"`    // leaf: stored value
	Child    common.Hash   `json:"child,omitempty"`    // extension: hash of the next node
	Children [16]common.Hash `json:"children,omitempty"` // branch: one slot per nibble, zero hash = absent
	Branch   []byte        `json:"branch_value,omitempty"` // branch: value stored at this exact path, if any
}

func (n *node) encode() []byte {
	data, err := json.Marshal(n)
	if err != nil {
		panic(fmt.Sprintf("trie: encode node: %v", err))
	}
	return data
}

func decodeNode(data []byte) (*node, error) {
	var n node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("trie: decode node: %w", err)
	}
	return &n, nil
}

// hashNode returns the content hash a node is stored and referenced under.
func hashNode(n *node) common.Hash {
	return crypto.Hash256(n.encode())
}

// keyToNibbles expands a byte key into its nibble sequence, high nibble
// first, matching the "half-byte per trie level" addressing every
// Merkle-Patricia trie implementation uses to keep branch fan-out at 16.
func keyToNibbles(key []byte) []byte {
	nibbles := make([]byte, len(key)*2)
	for i, b := range key {
		nibbles[i*2] = b >> 4
		nibbles[i*2+1] = b & 0x0f
	}
	return nibbles
}

func commonPrefixLen(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func equalBytes(a, b []byte) bool {
	return bytes.Equal(a, b)
}
