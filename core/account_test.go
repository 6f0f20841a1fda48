package core

import (
	"testing"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/internal/testutil"
	"github.com/mapprotocol/mapchain/statedb"
	"github.com/mapprotocol/mapchain/trie"
)

func newTestBalance(t *testing.T) *Balance {
	t.Helper()
	backend := trie.NewArchive(testutil.NewMemDB())
	state := statedb.New(backend, trie.EmptyRoot)
	return NewBalance(state)
}

func TestBalanceAddAndGet(t *testing.T) {
	b := newTestBalance(t)
	addr := common.BytesToAddress([]byte("alice"))

	if err := b.AddBalance(addr, 100); err != nil {
		t.Fatal(err)
	}
	acc, err := b.GetAccount(addr)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Balance != 100 {
		t.Errorf("balance: got %d want 100", acc.Balance)
	}
}

func TestBalanceSubInsufficientFails(t *testing.T) {
	b := newTestBalance(t)
	addr := common.BytesToAddress([]byte("bob"))
	if err := b.SubBalance(addr, 1); err != ErrBalanceNotEnough {
		t.Errorf("expected ErrBalanceNotEnough, got %v", err)
	}
}

func TestBalanceTransferInsufficientIsSilentNoOp(t *testing.T) {
	b := newTestBalance(t)
	from := common.BytesToAddress([]byte("from"))
	to := common.BytesToAddress([]byte("to"))

	if err := b.Transfer(from, to, 50); err != nil {
		t.Fatalf("Transfer should not error on insufficient balance: %v", err)
	}
	toAcc, err := b.GetAccount(to)
	if err != nil {
		t.Fatal(err)
	}
	if toAcc.Balance != 0 {
		t.Errorf("recipient balance should be untouched, got %d", toAcc.Balance)
	}
}

func TestBalanceSnapshotRevert(t *testing.T) {
	b := newTestBalance(t)
	addr := common.BytesToAddress([]byte("carol"))
	if err := b.AddBalance(addr, 10); err != nil {
		t.Fatal(err)
	}
	snap := b.Snapshot()
	if err := b.AddBalance(addr, 90); err != nil {
		t.Fatal(err)
	}
	b.RevertToSnapshot(snap)

	acc, err := b.GetAccount(addr)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Balance != 10 {
		t.Errorf("balance after revert: got %d want 10", acc.Balance)
	}
}

func TestBalanceCommitPersistsAcrossViews(t *testing.T) {
	backend := trie.NewArchive(testutil.NewMemDB())
	state := statedb.New(backend, trie.EmptyRoot)
	b := NewBalance(state)
	addr := common.BytesToAddress([]byte("dave"))

	if err := b.AddBalance(addr, 7); err != nil {
		t.Fatal(err)
	}
	root, err := b.Commit()
	if err != nil {
		t.Fatal(err)
	}
	if err := state.Commit(); err != nil {
		t.Fatal(err)
	}

	reloaded := NewBalance(statedb.New(backend, root))
	acc, err := reloaded.GetAccount(addr)
	if err != nil {
		t.Fatal(err)
	}
	if acc.Balance != 7 {
		t.Errorf("reloaded balance: got %d want 7", acc.Balance)
	}
}
