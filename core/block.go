package core

import (
	"encoding/json"
	"fmt"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/crypto"
)

// Header is the block metadata that is hashed, signed, and chained.
type Header struct {
	Height     uint64      `json:"height"`
	ParentHash common.Hash `json:"parent_hash"`
	TxRoot     common.Hash `json:"tx_root"`
	StateRoot  common.Hash `json:"state_root"`
	SignRoot   common.Hash `json:"sign_root"`
	Time       int64       `json:"time"`
}

// Hash returns the blake2b-256 digest of the header's canonical encoding.
func (h *Header) Hash() common.Hash {
	data, err := json.Marshal(h)
	if err != nil {
		panic(fmt.Sprintf("core: encode header: %v", err))
	}
	return crypto.Hash256(data)
}

// SigningHash returns the header hash with SignRoot zeroed: the value a
// proposer actually signs. SignRoot is itself derived from that signature,
// so it can't be part of the digest the signature covers.
func (h *Header) SigningHash() common.Hash {
	cp := *h
	cp.SignRoot = common.Hash{}
	return cp.Hash()
}

// VerificationItem pairs a signed message hash with the signature over it,
// e.g. the proposer's signature over a block header's hash.
type VerificationItem struct {
	Msg       common.Hash                `json:"msg"`
	Signature [crypto.SignatureSize]byte `json:"signature"`
}

// ToMsg returns the exact bytes the signature covers.
func (v *VerificationItem) ToMsg() []byte {
	return v.Msg[:]
}

// BlockProofTypeEd25519 identifies a BlockProof carrying a raw 32-byte
// Ed25519 public key.
const BlockProofTypeEd25519 = 0

// BlockProof is a compact, self-describing authority identity attached to a
// block. KeyBytes0/KeyBytes1 hold a 64-byte key buffer split across two
// fixed 32-byte halves (so the struct stays flat and JSON-stable); for
// TypeTag == BlockProofTypeEd25519 only the first half is a real Ed25519
// public key, the second half is padding reserved for future key schemes
// with larger public keys.
type BlockProof struct {
	KeyBytes0 [32]byte `json:"key_bytes_0"`
	KeyBytes1 [32]byte `json:"key_bytes_1"`
	TypeTag   uint8    `json:"type_tag"`
}

// NewEd25519BlockProof builds a BlockProof embedding an Ed25519 public key.
func NewEd25519BlockProof(pub crypto.PublicKey) BlockProof {
	var p BlockProof
	copy(p.KeyBytes0[:], pub)
	p.TypeTag = BlockProofTypeEd25519
	return p
}

// PubKey reconstructs the 64-byte key buffer the original proof embedded,
// mirroring the upstream `proof.get_pk(pk0: [u8;64])` accessor.
func (p *BlockProof) PubKey() [64]byte {
	var buf [64]byte
	copy(buf[:32], p.KeyBytes0[:])
	copy(buf[32:], p.KeyBytes1[:])
	return buf
}

// Ed25519PublicKey returns the 32-byte Ed25519 public key embedded in a
// BlockProof with TypeTag == BlockProofTypeEd25519.
func (p *BlockProof) Ed25519PublicKey() crypto.PublicKey {
	out := make(crypto.PublicKey, 32)
	copy(out, p.KeyBytes0[:])
	return out
}

// Block is an immutable, signed collection of transactions extending the
// chain by exactly one height.
type Block struct {
	Header Header             `json:"header"`
	Signs  []VerificationItem `json:"signs"`
	Txs    []*Transaction     `json:"txs"`
	Proofs []BlockProof       `json:"proofs"`
}

// Hash returns the block's identity hash: the hash of its header.
func (b *Block) Hash() common.Hash {
	return b.Header.Hash()
}

// SigningHash returns the hash a proposer signs: its header hash with
// SignRoot zeroed out.
func (b *Block) SigningHash() common.Hash {
	return b.Header.SigningHash()
}

// ComputeSignRoot returns the deterministic root hash of the Signs list.
func ComputeSignRoot(signs []VerificationItem) common.Hash {
	data, err := json.Marshal(signs)
	if err != nil {
		panic(fmt.Sprintf("core: encode sign root: %v", err))
	}
	return crypto.Hash256(data)
}

// VerifyIntegrity checks the structural invariants that don't require
// executing the block's transactions: tx_root and sign_root must match the
// actual Txs/Signs lists.
func (b *Block) VerifyIntegrity() error {
	if got, want := ComputeTxRoot(b.Txs), b.Header.TxRoot; got != want {
		return fmt.Errorf("%w: tx_root got %s want %s", ErrMismatchHash, got, want)
	}
	if got, want := ComputeSignRoot(b.Signs), b.Header.SignRoot; got != want {
		return fmt.Errorf("%w: sign_root got %s want %s", ErrMismatchHash, got, want)
	}
	return nil
}

// NewUnsignedBlock builds a block header and body from the given
// parameters, with StateRoot/SignRoot left zero for the executor and
// consensus module to fill in.
func NewUnsignedBlock(height uint64, parentHash common.Hash, now int64, txs []*Transaction) *Block {
	return &Block{
		Header: Header{
			Height:     height,
			ParentHash: parentHash,
			TxRoot:     ComputeTxRoot(txs),
			Time:       now,
		},
		Txs: txs,
	}
}
