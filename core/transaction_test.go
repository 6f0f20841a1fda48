package core

import (
	"testing"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/crypto"
)

const testChainID uint64 = 1

func newSignedTransferTx(t *testing.T, nonce uint64) (*Transaction, common.Address) {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	data := EncodeTransferData(TransferData{Recipient: common.BytesToAddress([]byte("recipient")), Value: 100})
	tx := &Transaction{Nonce: nonce, GasPrice: 1, Gas: 21000, MethodID: MethodBalanceTransfer, Data: data}
	tx.Sign(testChainID, priv)
	return tx, priv.Public().Address()
}

func TestTransactionSignAndVerify(t *testing.T) {
	tx, sender := newSignedTransferTx(t, 1)
	if err := tx.VerifySign(testChainID); err != nil {
		t.Fatalf("VerifySign: %v", err)
	}
	if tx.Sender() != sender {
		t.Error("Sender() does not match the signing key's address")
	}
}

func TestTransactionVerifySignWrongChainID(t *testing.T) {
	tx, _ := newSignedTransferTx(t, 1)
	if err := tx.VerifySign(testChainID + 1); err == nil {
		t.Error("signature should not verify under a different chain id")
	}
}

func TestTransactionHashChangesWithSignature(t *testing.T) {
	tx1, _ := newSignedTransferTx(t, 1)
	tx2, _ := newSignedTransferTx(t, 1)
	if tx1.Hash() == tx2.Hash() {
		t.Error("two independently signed transactions should not hash equal")
	}
}

func TestComputeTxRootEmpty(t *testing.T) {
	root := ComputeTxRoot(nil)
	if root != ComputeTxRoot([]*Transaction{}) {
		t.Error("ComputeTxRoot(nil) should equal ComputeTxRoot of an empty slice")
	}
}

func TestTransferDataRoundtrip(t *testing.T) {
	want := TransferData{Recipient: common.BytesToAddress([]byte("to")), Value: 42}
	data := EncodeTransferData(want)
	got, err := DecodeTransferData(data)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("roundtrip mismatch: got %+v want %+v", got, want)
	}
}
