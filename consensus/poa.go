// Package consensus implements Proof-of-Authority block verification and
// finalization. A block is authoritative if its first signature was made by
// the pubkey embedded in its first proof, or — when a block carries no
// proofs at all — by the chain's configured genesis authority key.
package consensus

import (
	"errors"
	"fmt"

	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/crypto"
)

// PoA is the Proof-of-Authority authority verifier and finalizer.
type PoA struct {
	genesisPubKey crypto.PublicKey
}

// New returns a PoA engine that falls back to genesisPubKey when a block
// carries no proofs.
func New(genesisPubKey crypto.PublicKey) *PoA {
	return &PoA{genesisPubKey: genesisPubKey}
}

// Verify checks block.Signs[0] against block.Proofs[0]'s embedded pubkey, or
// against the genesis authority key when Proofs is empty. A proof whose
// TypeTag is not BlockProofTypeEd25519 is accepted unconditionally: it is
// reserved for key schemes this node does not yet understand, matching the
// original design's forward-compatibility stance.
func (p *PoA) Verify(block *core.Block) error {
	if len(block.Signs) == 0 {
		return fmt.Errorf("%w: block carries no signatures", core.ErrInvalidAuthority)
	}
	sign := block.Signs[0]

	var proof core.BlockProof
	if len(block.Proofs) == 0 {
		proof = core.NewEd25519BlockProof(p.genesisPubKey)
	} else {
		proof = block.Proofs[0]
	}

	if proof.TypeTag != core.BlockProofTypeEd25519 {
		return nil
	}

	if sign.Msg != block.SigningHash() {
		return fmt.Errorf("%w: signed message does not match block hash", core.ErrInvalidAuthority)
	}

	pub := proof.Ed25519PublicKey()
	if err := crypto.Verify(pub, sign.ToMsg(), sign.Signature[:]); err != nil {
		return fmt.Errorf("%w: %v", core.ErrInvalidAuthority, err)
	}
	return nil
}

// FinalizeBlock signs block.SigningHash() (the header hash with SignRoot
// zeroed) with priv, appends the resulting
// VerificationItem, recomputes SignRoot, and returns the signed block. The
// caller is responsible for embedding a matching BlockProof when priv is not
// the genesis key.
func (p *PoA) FinalizeBlock(block *core.Block, priv crypto.PrivateKey) *core.Block {
	hash := block.SigningHash()
	sig := crypto.Sign(priv, hash[:])

	item := core.VerificationItem{Msg: hash}
	copy(item.Signature[:], sig)

	block.Signs = append(block.Signs, item)
	block.Header.SignRoot = core.ComputeSignRoot(block.Signs)
	return block
}

// ErrNoAuthority is returned by callers that configure a PoA engine without
// any way to identify the genesis authority.
var ErrNoAuthority = errors.New("consensus: no genesis authority configured")
