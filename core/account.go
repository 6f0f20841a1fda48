package core

import (
	"encoding/json"
	"fmt"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/crypto"
	"github.com/mapprotocol/mapchain/statedb"
)

// Account is a balance-holding, replay-protected chain participant.
type Account struct {
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

func (a *Account) encode() []byte {
	data, err := json.Marshal(a)
	if err != nil {
		panic(fmt.Sprintf("core: encode account: %v", err))
	}
	return data
}

func decodeAccount(data []byte) (*Account, error) {
	var a Account
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("core: decode account: %w", err)
	}
	return &a, nil
}

// AccountKey returns the state-trie key an account is stored under: the
// blake2b-256 hash of the address left-padded to 32 bytes.
func AccountKey(addr common.Address) common.Hash {
	padded := common.BytesToHash(addr.Bytes())
	return crypto.Hash256(padded.Bytes())
}

// Balance is a read-through, write-buffered view over a StateDB that exposes
// the account-level operations the executor needs. Every mutator only
// touches the in-memory dirty set; Commit serializes every touched account
// back to the underlying StateDB and returns the resulting state root.
type Balance struct {
	state *statedb.StateDB
	dirty map[common.Address]*Account
}

// NewBalance returns a Balance view over state.
func NewBalance(state *statedb.StateDB) *Balance {
	return &Balance{state: state, dirty: make(map[common.Address]*Account)}
}

// GetAccount returns addr's account, or a zero-value account if it has never
// been touched.
func (b *Balance) GetAccount(addr common.Address) (*Account, error) {
	if acc, ok := b.dirty[addr]; ok {
		return acc, nil
	}
	data, ok, err := b.state.GetStorage(AccountKey(addr))
	if err != nil {
		return nil, fmt.Errorf("core: get account %s: %w", addr, err)
	}
	if !ok {
		return &Account{}, nil
	}
	return decodeAccount(data)
}

func (b *Balance) touch(addr common.Address) (*Account, error) {
	if acc, ok := b.dirty[addr]; ok {
		return acc, nil
	}
	acc, err := b.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	b.dirty[addr] = acc
	return acc, nil
}

// AddBalance credits addr unconditionally.
func (b *Balance) AddBalance(addr common.Address, amount uint64) error {
	acc, err := b.touch(addr)
	if err != nil {
		return err
	}
	acc.Balance += amount
	return nil
}

// SubBalance debits addr, returning ErrBalanceNotEnough (and leaving the
// account unchanged) when its balance is below amount.
func (b *Balance) SubBalance(addr common.Address, amount uint64) error {
	acc, err := b.touch(addr)
	if err != nil {
		return err
	}
	if acc.Balance < amount {
		return ErrBalanceNotEnough
	}
	acc.Balance -= amount
	return nil
}

// IncNonce increments addr's nonce by one.
func (b *Balance) IncNonce(addr common.Address) error {
	acc, err := b.touch(addr)
	if err != nil {
		return err
	}
	acc.Nonce++
	return nil
}

// Transfer moves amount from sender to recipient. Per the executor's fee
// policy, an insufficient balance makes the transfer a silent no-op: the fee
// was already taken unconditionally by the caller, so a failed transfer must
// not return an error that would unwind the whole transaction.
func (b *Balance) Transfer(from, to common.Address, amount uint64) error {
	sender, err := b.touch(from)
	if err != nil {
		return err
	}
	if sender.Balance < amount {
		return nil
	}
	recipient, err := b.touch(to)
	if err != nil {
		return err
	}
	sender.Balance -= amount
	recipient.Balance += amount
	return nil
}

// Snapshot captures the current in-memory dirty set so a later
// RevertToSnapshot can undo every mutation made since, without touching the
// underlying StateDB. Used by the executor to unwind a transaction whose
// dispatched method fails: the method's effects are undone, while the fee and
// nonce bump taken before the snapshot, and earlier transactions in the same
// block, stay applied.
func (b *Balance) Snapshot() map[common.Address]*Account {
	snap := make(map[common.Address]*Account, len(b.dirty))
	for addr, acc := range b.dirty {
		cp := *acc
		snap[addr] = &cp
	}
	return snap
}

// RevertToSnapshot restores the dirty set to a value previously returned by
// Snapshot.
func (b *Balance) RevertToSnapshot(snap map[common.Address]*Account) {
	b.dirty = snap
}

// Commit serializes every dirty account into the underlying StateDB and
// returns the resulting state root. It does not call StateDB.Commit — that
// is the block-chain engine's job once the whole block executes cleanly.
func (b *Balance) Commit() (common.Hash, error) {
	for addr, acc := range b.dirty {
		if err := b.state.SetStorage(AccountKey(addr), acc.encode()); err != nil {
			return common.Hash{}, fmt.Errorf("core: commit account %s: %w", addr, err)
		}
	}
	b.dirty = make(map[common.Address]*Account)
	return b.state.Root(), nil
}
