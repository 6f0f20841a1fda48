package core

import (
	"testing"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/internal/testutil"
	"github.com/mapprotocol/mapchain/statedb"
	"github.com/mapprotocol/mapchain/trie"
)

func newTestStaking(t *testing.T) *Staking {
	t.Helper()
	backend := trie.NewArchive(testutil.NewMemDB())
	state := statedb.New(backend, trie.EmptyRoot)
	return NewStaking(state)
}

func TestStakingInsertAndGet(t *testing.T) {
	s := newTestStaking(t)
	addr := common.BytesToAddress([]byte("validator-a"))
	v := &Validator{Address: addr, Balance: 1000}

	if err := s.Insert(v); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.GetValidator(addr)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected validator to be present")
	}
	if got.Balance != 1000 {
		t.Errorf("balance: got %d want 1000", got.Balance)
	}
}

func TestStakingListOrderIsInsertionReversed(t *testing.T) {
	s := newTestStaking(t)
	a := common.BytesToAddress([]byte("a"))
	bAddr := common.BytesToAddress([]byte("b"))

	if err := s.Insert(&Validator{Address: a}); err != nil {
		t.Fatal(err)
	}
	if err := s.Insert(&Validator{Address: bAddr}); err != nil {
		t.Fatal(err)
	}

	items, err := s.ValidatorItems()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 validators, got %d", len(items))
	}
	if items[0].Address != bAddr || items[1].Address != a {
		t.Error("insert places the new entry at the head of the list")
	}
}

func TestStakingDeleteUnlinks(t *testing.T) {
	s := newTestStaking(t)
	a := common.BytesToAddress([]byte("a"))
	bAddr := common.BytesToAddress([]byte("b"))
	cAddr := common.BytesToAddress([]byte("c"))

	for _, addr := range []common.Address{a, bAddr, cAddr} {
		if err := s.Insert(&Validator{Address: addr}); err != nil {
			t.Fatal(err)
		}
	}

	ok, err := s.Delete(bAddr)
	if err != nil || !ok {
		t.Fatalf("Delete: ok=%v err=%v", ok, err)
	}

	items, err := s.ValidatorItems()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 validators after delete, got %d", len(items))
	}
	for _, v := range items {
		if v.Address == bAddr {
			t.Error("deleted validator still present in list")
		}
	}
}

func TestStakingSnapshotRevert(t *testing.T) {
	s := newTestStaking(t)
	addr := common.BytesToAddress([]byte("a"))
	if err := s.Insert(&Validator{Address: addr, Balance: 1}); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()

	other := common.BytesToAddress([]byte("b"))
	if err := s.Insert(&Validator{Address: other}); err != nil {
		t.Fatal(err)
	}
	s.RevertToSnapshot(snap)

	items, err := s.ValidatorItems()
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].Address != addr {
		t.Error("revert should undo the second insert")
	}
}
