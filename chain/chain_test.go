package chain

import (
	"errors"
	"testing"

	"github.com/mapprotocol/mapchain/chaindb"
	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/consensus"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/crypto"
	"github.com/mapprotocol/mapchain/events"
	"github.com/mapprotocol/mapchain/internal/testutil"
	"github.com/mapprotocol/mapchain/trie"
	"github.com/mapprotocol/mapchain/vm"

	_ "github.com/mapprotocol/mapchain/vm/modules/balance"
	_ "github.com/mapprotocol/mapchain/vm/modules/staking"
)

func newTestChain(t *testing.T) (*BlockChain, crypto.PrivateKey, crypto.PublicKey) {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	db := testutil.NewMemDB()
	var backend trie.Backend = trie.NewArchive(db)
	spec := ChainSpec{
		ChainID:                1,
		GenesisTime:            1000,
		Alloc:                  map[common.Address]uint64{pub.Address(): 1_000_000},
		GenesisAuthorityPubKey: pub,
	}
	bc := New(chaindb.New(db), backend, spec, events.NewEmitter())
	if err := bc.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return bc, priv, pub
}

func proposeBlock(t *testing.T, bc *BlockChain, priv crypto.PrivateKey, pub crypto.PublicKey, txs []*core.Transaction) *core.Block {
	t.Helper()
	head := bc.CurrentBlock()
	block := core.NewUnsignedBlock(head.Header.Height+1, head.Hash(), head.Header.Time+1, txs)

	root, err := bc.EstimateStateRoot(head.Header.StateRoot, block, pub.Address())
	if err != nil {
		t.Fatalf("EstimateStateRoot: %v", err)
	}
	block.Header.StateRoot = root
	block.Proofs = []core.BlockProof{core.NewEd25519BlockProof(pub)}

	poa := consensus.New(pub)
	return poa.FinalizeBlock(block, priv)
}

func TestLoadCreatesGenesis(t *testing.T) {
	bc, _, pub := newTestChain(t)
	if bc.Height() != 0 {
		t.Fatalf("height: got %d want 0", bc.Height())
	}
	balance := core.NewBalance(bc.StateAt(bc.CurrentBlock().Header.StateRoot))
	acc, err := balance.GetAccount(pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	if acc.Balance != 1_000_000 {
		t.Errorf("genesis alloc: got %d want 1000000", acc.Balance)
	}
}

func TestInsertBlockExtendsHead(t *testing.T) {
	bc, priv, pub := newTestChain(t)
	block := proposeBlock(t, bc, priv, pub, nil)

	if err := bc.InsertBlock(block); err != nil {
		t.Fatalf("InsertBlock: %v", err)
	}
	if bc.Height() != 1 {
		t.Fatalf("height after insert: got %d want 1", bc.Height())
	}
	if bc.CurrentBlock().Hash() != block.Hash() {
		t.Error("head should be the inserted block")
	}
}

func TestInsertBlockRejectsDuplicate(t *testing.T) {
	bc, priv, pub := newTestChain(t)
	block := proposeBlock(t, bc, priv, pub, nil)
	if err := bc.InsertBlock(block); err != nil {
		t.Fatal(err)
	}
	if err := bc.InsertBlock(block); err != core.ErrKnownBlock {
		t.Errorf("expected ErrKnownBlock, got %v", err)
	}
}

func TestInsertBlockRejectsUnknownParent(t *testing.T) {
	bc, priv, pub := newTestChain(t)
	head := bc.CurrentBlock()
	block := core.NewUnsignedBlock(head.Header.Height+1, common.Hash{0xde, 0xad}, head.Header.Time+1, nil)
	root, err := bc.EstimateStateRoot(head.Header.StateRoot, block, pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	block.Header.StateRoot = root
	block.Proofs = []core.BlockProof{core.NewEd25519BlockProof(pub)}
	poa := consensus.New(pub)
	block = poa.FinalizeBlock(block, priv)

	if err := bc.InsertBlock(block); err != core.ErrUnknownAncestor {
		t.Errorf("expected ErrUnknownAncestor, got %v", err)
	}
}

func TestEstimateStateRootLeavesNoDurableEffect(t *testing.T) {
	bc, priv, pub := newTestChain(t)

	transferData := core.EncodeTransferData(core.TransferData{
		Recipient: common.BytesToAddress([]byte("bob")),
		Value:     10,
	})
	tx := &core.Transaction{Nonce: 1, MethodID: core.MethodBalanceTransfer, Data: transferData}
	tx.Sign(1, priv)

	head := bc.CurrentBlock()
	block := core.NewUnsignedBlock(head.Header.Height+1, head.Hash(), head.Header.Time+1, []*core.Transaction{tx})

	root1, err := bc.EstimateStateRoot(head.Header.StateRoot, block, pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	root2, err := bc.EstimateStateRoot(head.Header.StateRoot, block, pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	if root1 != root2 {
		t.Error("repeated EstimateStateRoot calls against the same parent should be idempotent")
	}

	balance := core.NewBalance(bc.StateAt(head.Header.StateRoot))
	acc, err := balance.GetAccount(pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	if acc.Nonce != 0 {
		t.Error("EstimateStateRoot must not leave any durable effect on chain state")
	}
}

func TestInsertBlockRejectsInvalidBlockHeight(t *testing.T) {
	bc, priv, pub := newTestChain(t)
	head := bc.CurrentBlock()
	block := core.NewUnsignedBlock(head.Header.Height+2, head.Hash(), head.Header.Time+1, nil)

	root, err := bc.EstimateStateRoot(head.Header.StateRoot, block, pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	block.Header.StateRoot = root
	block.Proofs = []core.BlockProof{core.NewEd25519BlockProof(pub)}
	poa := consensus.New(pub)
	block = poa.FinalizeBlock(block, priv)

	if err := bc.InsertBlock(block); err != core.ErrInvalidBlockHeight {
		t.Errorf("expected ErrInvalidBlockHeight, got %v", err)
	}
}

func TestInsertBlockRejectsInvalidBlockTime(t *testing.T) {
	bc, priv, pub := newTestChain(t)
	head := bc.CurrentBlock()
	block := core.NewUnsignedBlock(head.Header.Height+1, head.Hash(), head.Header.Time, nil) // not strictly after parent

	root, err := bc.EstimateStateRoot(head.Header.StateRoot, block, pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	block.Header.StateRoot = root
	block.Proofs = []core.BlockProof{core.NewEd25519BlockProof(pub)}
	poa := consensus.New(pub)
	block = poa.FinalizeBlock(block, priv)

	if err := bc.InsertBlock(block); err != core.ErrInvalidBlockTime {
		t.Errorf("expected ErrInvalidBlockTime, got %v", err)
	}
}

func TestInsertBlockRejectsUnauthorisedSigner(t *testing.T) {
	bc, _, pub := newTestChain(t)
	roguePriv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	head := bc.CurrentBlock()
	block := core.NewUnsignedBlock(head.Header.Height+1, head.Hash(), head.Header.Time+1, nil)

	root, err := bc.EstimateStateRoot(head.Header.StateRoot, block, pub.Address())
	if err != nil {
		t.Fatal(err)
	}
	block.Header.StateRoot = root
	// Proofs stays empty, so Verify falls back to the genesis authority key -
	// but the block is signed by an unrelated key.
	poa := consensus.New(pub)
	block = poa.FinalizeBlock(block, roguePriv)

	if err := bc.InsertBlock(block); !errors.Is(err, core.ErrInvalidAuthority) {
		t.Errorf("expected ErrInvalidAuthority, got %v", err)
	}
}

func TestInsertBlockSingleTransferExactBalances(t *testing.T) {
	authPriv, authPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	senderPriv, senderPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	const minerInitial = 500_000
	const senderInitial = 1_000_000

	db := testutil.NewMemDB()
	var backend trie.Backend = trie.NewArchive(db)
	spec := ChainSpec{
		ChainID:     1,
		GenesisTime: 1000,
		Alloc: map[common.Address]uint64{
			authPub.Address():   minerInitial,
			senderPub.Address(): senderInitial,
		},
		GenesisAuthorityPubKey: authPub,
	}
	bc := New(chaindb.New(db), backend, spec, events.NewEmitter())
	if err := bc.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	recipient := common.BytesToAddress([]byte("bob"))
	transferData := core.EncodeTransferData(core.TransferData{Recipient: recipient, Value: 1})
	tx := &core.Transaction{Nonce: 1, MethodID: core.MethodBalanceTransfer, Data: transferData}
	tx.Sign(spec.ChainID, senderPriv)

	block := proposeBlock(t, bc, authPriv, authPub, []*core.Transaction{tx})
	if err := bc.InsertBlock(block); err != nil {
		t.Fatalf("InsertBlock: %v", err)
	}

	head := bc.CurrentBlock()
	balance := core.NewBalance(bc.StateAt(head.Header.StateRoot))

	senderAcc, err := balance.GetAccount(senderPub.Address())
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(senderInitial - 1 - vm.TransferFee); senderAcc.Balance != want {
		t.Errorf("sender balance: got %d want %d", senderAcc.Balance, want)
	}
	if senderAcc.Nonce != 1 {
		t.Errorf("sender nonce: got %d want 1", senderAcc.Nonce)
	}

	recipientAcc, err := balance.GetAccount(recipient)
	if err != nil {
		t.Fatal(err)
	}
	if recipientAcc.Balance != 1 {
		t.Errorf("recipient balance: got %d want 1", recipientAcc.Balance)
	}

	minerAcc, err := balance.GetAccount(authPub.Address())
	if err != nil {
		t.Fatal(err)
	}
	if want := uint64(minerInitial + vm.TransferFee); minerAcc.Balance != want {
		t.Errorf("miner balance: got %d want %d", minerAcc.Balance, want)
	}
}
