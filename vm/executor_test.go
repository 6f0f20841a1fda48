package vm

import (
	"testing"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/crypto"
	"github.com/mapprotocol/mapchain/events"
	"github.com/mapprotocol/mapchain/internal/testutil"
	"github.com/mapprotocol/mapchain/statedb"
	"github.com/mapprotocol/mapchain/trie"

	_ "github.com/mapprotocol/mapchain/vm/modules/balance"
	_ "github.com/mapprotocol/mapchain/vm/modules/staking"
)

const testChainID uint64 = 1

func newTestExecState(t *testing.T) *statedb.StateDB {
	t.Helper()
	db := testutil.NewMemDB()
	var backend trie.Backend = trie.NewArchive(db)
	return statedb.New(backend, trie.EmptyRoot)
}

func fund(t *testing.T, state *statedb.StateDB, addr common.Address, amount uint64) {
	t.Helper()
	balance := core.NewBalance(state)
	if err := balance.AddBalance(addr, amount); err != nil {
		t.Fatal(err)
	}
	if _, err := balance.Commit(); err != nil {
		t.Fatal(err)
	}
}

func signedTransfer(t *testing.T, priv crypto.PrivateKey, nonce uint64, recipient common.Address, value uint64) *core.Transaction {
	t.Helper()
	data := core.EncodeTransferData(core.TransferData{Recipient: recipient, Value: value})
	tx := &core.Transaction{Nonce: nonce, MethodID: core.MethodBalanceTransfer, Data: data}
	tx.Sign(testChainID, priv)
	return tx
}

func TestExecuteBlockDeductsFeeAndCreditsMiner(t *testing.T) {
	state := newTestExecState(t)
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	const initial = 1_000_000
	fund(t, state, pub.Address(), initial)

	recipient := common.BytesToAddress([]byte("recipient"))
	miner := common.BytesToAddress([]byte("miner"))
	tx := signedTransfer(t, priv, 1, recipient, 100)
	block := core.NewUnsignedBlock(1, common.Hash{}, 1, []*core.Transaction{tx})

	exec := NewExecutor(testChainID, events.NewEmitter())
	if _, err := exec.ExecuteBlock(state, block, miner); err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}

	balance := core.NewBalance(state)
	senderAcc, err := balance.GetAccount(pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	if senderAcc.Balance != initial-100-TransferFee {
		t.Errorf("sender balance: got %d want %d", senderAcc.Balance, initial-100-TransferFee)
	}
	if senderAcc.Nonce != 1 {
		t.Errorf("sender nonce: got %d want 1", senderAcc.Nonce)
	}

	recipientAcc, err := balance.GetAccount(recipient)
	if err != nil {
		t.Fatal(err)
	}
	if recipientAcc.Balance != 100 {
		t.Errorf("recipient balance: got %d want 100", recipientAcc.Balance)
	}

	minerAcc, err := balance.GetAccount(miner)
	if err != nil {
		t.Fatal(err)
	}
	if minerAcc.Balance != TransferFee {
		t.Errorf("miner balance: got %d want %d", minerAcc.Balance, TransferFee)
	}
}

func TestExecuteBlockSkipsWrongNonceWithoutCharging(t *testing.T) {
	state := newTestExecState(t)
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	const initial = 1_000_000
	fund(t, state, pub.Address(), initial)

	recipient := common.BytesToAddress([]byte("recipient"))
	miner := common.BytesToAddress([]byte("miner"))
	tx := signedTransfer(t, priv, 5, recipient, 100) // account nonce is 0, wants 1
	block := core.NewUnsignedBlock(1, common.Hash{}, 1, []*core.Transaction{tx})

	exec := NewExecutor(testChainID, events.NewEmitter())
	if _, err := exec.ExecuteBlock(state, block, miner); err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}

	balance := core.NewBalance(state)
	senderAcc, err := balance.GetAccount(pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	if senderAcc.Balance != initial || senderAcc.Nonce != 0 {
		t.Errorf("a nonce mismatch must leave sender state untouched: balance=%d nonce=%d", senderAcc.Balance, senderAcc.Nonce)
	}

	minerAcc, err := balance.GetAccount(miner)
	if err != nil {
		t.Fatal(err)
	}
	if minerAcc.Balance != 0 {
		t.Errorf("miner should not be credited for a skipped tx: got %d want 0", minerAcc.Balance)
	}
}

func TestExecuteBlockBadSignatureSkipsFeeAndNonce(t *testing.T) {
	state := newTestExecState(t)
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	const initial = 1_000_000
	fund(t, state, pub.Address(), initial)

	recipient := common.BytesToAddress([]byte("recipient"))
	miner := common.BytesToAddress([]byte("miner"))
	tx := signedTransfer(t, priv, 1, recipient, 100)
	tx.Signature.Sig[0] ^= 0xff // corrupt the signature
	block := core.NewUnsignedBlock(1, common.Hash{}, 1, []*core.Transaction{tx})

	exec := NewExecutor(testChainID, events.NewEmitter())
	if _, err := exec.ExecuteBlock(state, block, miner); err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}

	balance := core.NewBalance(state)
	senderAcc, err := balance.GetAccount(pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	if senderAcc.Balance != initial || senderAcc.Nonce != 0 {
		t.Errorf("a bad signature must leave sender state untouched: balance=%d nonce=%d", senderAcc.Balance, senderAcc.Nonce)
	}

	minerAcc, err := balance.GetAccount(miner)
	if err != nil {
		t.Fatal(err)
	}
	if minerAcc.Balance != 0 {
		t.Error("a bad signature must not pay the block's fee")
	}
}

func TestExecuteBlockDispatchFailureStillPaysFee(t *testing.T) {
	state := newTestExecState(t)
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	const initial = 1_000_000
	fund(t, state, pub.Address(), initial)

	miner := common.BytesToAddress([]byte("miner"))
	// staking.validate on a sender with no prior deposit always fails inside
	// the handler, after the fee/nonce have already been taken.
	data := core.EncodeValidateData(core.ValidateData{ActivateHeight: 10})
	tx := &core.Transaction{Nonce: 1, MethodID: core.MethodStakingValidate, Data: data}
	tx.Sign(testChainID, priv)
	block := core.NewUnsignedBlock(1, common.Hash{}, 1, []*core.Transaction{tx})

	exec := NewExecutor(testChainID, events.NewEmitter())
	if _, err := exec.ExecuteBlock(state, block, miner); err != nil {
		t.Fatalf("ExecuteBlock: %v", err)
	}

	balance := core.NewBalance(state)
	senderAcc, err := balance.GetAccount(pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	if senderAcc.Balance != initial-TransferFee {
		t.Errorf("fee should still be taken on dispatch failure: got %d want %d", senderAcc.Balance, initial-TransferFee)
	}
	if senderAcc.Nonce != 1 {
		t.Errorf("nonce should still be bumped on dispatch failure: got %d want 1", senderAcc.Nonce)
	}

	minerAcc, err := balance.GetAccount(miner)
	if err != nil {
		t.Fatal(err)
	}
	if minerAcc.Balance != TransferFee {
		t.Errorf("miner should be credited for a dispatch-failed tx: got %d want %d", minerAcc.Balance, TransferFee)
	}
}
