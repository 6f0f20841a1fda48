package staking

import (
	"testing"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/events"
	"github.com/mapprotocol/mapchain/internal/testutil"
	"github.com/mapprotocol/mapchain/statedb"
	"github.com/mapprotocol/mapchain/trie"
	"github.com/mapprotocol/mapchain/vm"
)

func newTestContext(t *testing.T) (*vm.Context, *core.Balance, *core.Staking, common.Address) {
	t.Helper()
	db := testutil.NewMemDB()
	var backend trie.Backend = trie.NewArchive(db)
	state := statedb.New(backend, trie.EmptyRoot)
	bal := core.NewBalance(state)
	stk := core.NewStaking(state)

	sender := common.BytesToAddress([]byte("validator"))
	tx := &core.Transaction{Nonce: 1}
	block := core.NewUnsignedBlock(1, common.Hash{}, 1, nil)

	return &vm.Context{
		Balance: bal,
		Staking: stk,
		Block:   block,
		Tx:      tx,
		Sender:  sender,
	}, bal, stk, sender
}

func TestHandleDepositAccumulatesQueue(t *testing.T) {
	ctx, bal, stk, sender := newTestContext(t)
	if err := bal.AddBalance(sender, 1_000); err != nil {
		t.Fatal(err)
	}

	pubKey := []byte("a-validator-pubkey")
	data := core.EncodeDepositData(core.DepositData{PubKey: pubKey, Value: 400})
	if err := handleDeposit(ctx, data); err != nil {
		t.Fatalf("handleDeposit: %v", err)
	}
	if err := handleDeposit(ctx, data); err != nil {
		t.Fatalf("second handleDeposit: %v", err)
	}

	v, ok, err := stk.GetValidator(sender)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a validator entry after deposit")
	}
	if v.DepositQueue != 800 {
		t.Errorf("deposit_queue: got %d want 800", v.DepositQueue)
	}
	if v.EffectiveBalance != 0 {
		t.Errorf("effective_balance should stay 0 until validate: got %d", v.EffectiveBalance)
	}

	senderAcc, err := bal.GetAccount(sender)
	if err != nil {
		t.Fatal(err)
	}
	if senderAcc.Balance != 200 {
		t.Errorf("sender balance: got %d want 200", senderAcc.Balance)
	}
}

func TestHandleValidateMovesQueueIntoEffectiveBalance(t *testing.T) {
	ctx, bal, stk, sender := newTestContext(t)
	if err := bal.AddBalance(sender, 1_000); err != nil {
		t.Fatal(err)
	}

	deposit := core.EncodeDepositData(core.DepositData{PubKey: []byte("pk"), Value: 500})
	if err := handleDeposit(ctx, deposit); err != nil {
		t.Fatalf("handleDeposit: %v", err)
	}

	validate := core.EncodeValidateData(core.ValidateData{ActivateHeight: 42})
	if err := handleValidate(ctx, validate); err != nil {
		t.Fatalf("handleValidate: %v", err)
	}

	v, ok, err := stk.GetValidator(sender)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a validator entry after validate")
	}
	if v.EffectiveBalance != 500 {
		t.Errorf("effective_balance: got %d want 500", v.EffectiveBalance)
	}
	if v.DepositQueue != 0 {
		t.Errorf("deposit_queue should drain to 0: got %d", v.DepositQueue)
	}
	if v.ActivateHeight != 42 {
		t.Errorf("activate_height: got %d want 42", v.ActivateHeight)
	}
}

func TestHandleValidateWithoutDepositFails(t *testing.T) {
	ctx, _, _, _ := newTestContext(t)
	validate := core.EncodeValidateData(core.ValidateData{ActivateHeight: 1})
	if err := handleValidate(ctx, validate); err == nil {
		t.Error("expected an error activating a validator with no deposit queued")
	}
}
