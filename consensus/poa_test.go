package consensus

import (
	"errors"
	"testing"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/crypto"
)

func newTestBlock() *core.Block {
	return core.NewUnsignedBlock(1, common.Hash{0x01}, 1000, nil)
}

func TestVerifyAcceptsGenesisAuthorityFallback(t *testing.T) {
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	block := newTestBlock()
	poa := New(pub)
	block = poa.FinalizeBlock(block, priv) // no Proofs -> falls back to genesisPubKey

	if err := poa.Verify(block); err != nil {
		t.Errorf("genesis-authority fallback should verify, got %v", err)
	}
}

func TestVerifyAcceptsEmbeddedProof(t *testing.T) {
	_, genesisPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	signerPriv, signerPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	block := newTestBlock()
	block.Proofs = []core.BlockProof{core.NewEd25519BlockProof(signerPub)}
	poa := New(genesisPub)
	block = poa.FinalizeBlock(block, signerPriv)

	if err := poa.Verify(block); err != nil {
		t.Errorf("a block signed by its own embedded proof key should verify, got %v", err)
	}
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	_, genesisPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	roguePriv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	block := newTestBlock()
	poa := New(genesisPub)
	block = poa.FinalizeBlock(block, roguePriv) // no Proofs -> must match genesisPub, but signed by a different key

	if err := poa.Verify(block); !errors.Is(err, core.ErrInvalidAuthority) {
		t.Errorf("expected ErrInvalidAuthority, got %v", err)
	}
}

func TestVerifyRejectsNoSignatures(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	block := newTestBlock()
	poa := New(pub)
	if err := poa.Verify(block); !errors.Is(err, core.ErrInvalidAuthority) {
		t.Errorf("expected ErrInvalidAuthority for an unsigned block, got %v", err)
	}
}
