package core

import (
	"testing"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/crypto"
)

func TestBlockHashDeterministic(t *testing.T) {
	block := NewUnsignedBlock(1, common.ZeroHash, 100, nil)
	h1 := block.Hash()
	h2 := block.Hash()
	if h1 != h2 {
		t.Error("Hash() should be deterministic for an unchanged header")
	}
}

func TestVerifyIntegrityDetectsTamperedTxRoot(t *testing.T) {
	tx, _ := newSignedTransferTx(t, 1)
	block := NewUnsignedBlock(1, common.ZeroHash, 100, []*Transaction{tx})
	block.Header.TxRoot = common.Hash{0xff}
	if err := block.VerifyIntegrity(); err == nil {
		t.Error("a tampered tx_root should fail integrity verification")
	}
}

func TestVerifyIntegrityAcceptsUntamperedBlock(t *testing.T) {
	tx, _ := newSignedTransferTx(t, 1)
	block := NewUnsignedBlock(1, common.ZeroHash, 100, []*Transaction{tx})
	block.Header.SignRoot = ComputeSignRoot(block.Signs)
	if err := block.VerifyIntegrity(); err != nil {
		t.Errorf("untampered block should pass: %v", err)
	}
}

func TestEd25519BlockProofRoundtrip(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	proof := NewEd25519BlockProof(pub)
	if proof.TypeTag != BlockProofTypeEd25519 {
		t.Fatalf("type tag: got %d want %d", proof.TypeTag, BlockProofTypeEd25519)
	}
	if !proof.Ed25519PublicKey().Equal(pub) {
		t.Error("Ed25519PublicKey() does not recover the original key")
	}
}
