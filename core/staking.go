package core

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/crypto"
	"github.com/mapprotocol/mapchain/statedb"
)

// statePrefixValidator tags a validator's storage slot within the shared
// state trie, distinguishing it from the account namespace even if an
// address and a hash happened to collide.
const statePrefixValidator uint64 = 2

// Validator is one entry in the staking module's doubly-linked validator
// list. Pre/Next are zero (common.ZeroAddress) at the ends of the list.
type Validator struct {
	Address          common.Address `json:"address"`
	PubKey           []byte         `json:"pubkey"`
	Balance          uint64         `json:"balance"`
	EffectiveBalance uint64         `json:"effective_balance"`
	ActivateHeight   uint64         `json:"activate_height"`
	ExitHeight       uint64         `json:"exit_height"`
	DepositQueue     uint64         `json:"deposit_queue"`
	UnlockedQueue    uint64         `json:"unlocked_queue"`
	Pre              common.Address `json:"pre"`
	Next             common.Address `json:"next"`
}

func (v *Validator) encode() []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("core: encode validator: %v", err))
	}
	return data
}

func decodeValidator(data []byte) (*Validator, error) {
	var v Validator
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("core: decode validator: %w", err)
	}
	return &v, nil
}

// ValidatorKey returns the state-trie key a validator (or the list head
// sentinel, for the zero address) is stored under.
func ValidatorKey(addr common.Address) common.Hash {
	padded := common.BytesToHash(addr.Bytes())
	buf := make([]byte, common.HashLength+8)
	copy(buf, padded.Bytes())
	binary.BigEndian.PutUint64(buf[common.HashLength:], statePrefixValidator)
	return crypto.Hash256(buf)
}

// validatorListHead is the fixed key the head of the validator list is
// rooted at: the validator key of the zero address, which is never a real
// validator's own address.
var validatorListHead = ValidatorKey(common.ZeroAddress)

// listHead is the on-disk payload at validatorListHead: just the address of
// the first validator in the list, or the zero address if the list is empty.
type listHead struct {
	First common.Address `json:"first"`
}

// Staking maintains the validator doubly-linked list over a StateDB. Like
// Balance, it buffers writes in memory and only touches the underlying
// StateDB on Commit.
type Staking struct {
	state *statedb.StateDB
	dirty map[common.Address]*Validator
	head  *common.Address // nil until read or written this view
}

// NewStaking returns a Staking view over state.
func NewStaking(state *statedb.StateDB) *Staking {
	return &Staking{state: state, dirty: make(map[common.Address]*Validator)}
}

func (s *Staking) readHead() (common.Address, error) {
	if s.head != nil {
		return *s.head, nil
	}
	data, ok, err := s.state.GetStorage(validatorListHead)
	if err != nil {
		return common.Address{}, fmt.Errorf("core: read validator head: %w", err)
	}
	if !ok {
		zero := common.ZeroAddress
		s.head = &zero
		return zero, nil
	}
	var h listHead
	if err := json.Unmarshal(data, &h); err != nil {
		return common.Address{}, fmt.Errorf("core: decode validator head: %w", err)
	}
	first := h.First
	s.head = &first
	return first, nil
}

func (s *Staking) writeHead(addr common.Address) {
	s.head = &addr
}

// GetValidator returns addr's validator entry, or (nil, false) if absent.
func (s *Staking) GetValidator(addr common.Address) (*Validator, bool, error) {
	if v, ok := s.dirty[addr]; ok {
		if v == nil {
			return nil, false, nil
		}
		return v, true, nil
	}
	data, ok, err := s.state.GetStorage(ValidatorKey(addr))
	if err != nil {
		return nil, false, fmt.Errorf("core: get validator %s: %w", addr, err)
	}
	if !ok {
		return nil, false, nil
	}
	v, err := decodeValidator(data)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *Staking) setValidator(v *Validator) {
	s.dirty[v.Address] = v
}

// Insert adds v at the head of the validator list. Insert is idempotent on
// re-insertion of the same address: it overwrites the existing entry's
// payload fields but leaves list linkage untouched.
func (s *Staking) Insert(v *Validator) error {
	if existing, ok, err := s.GetValidator(v.Address); err != nil {
		return err
	} else if ok {
		v.Pre = existing.Pre
		v.Next = existing.Next
		s.setValidator(v)
		return nil
	}

	head, err := s.readHead()
	if err != nil {
		return err
	}
	v.Pre = common.ZeroAddress
	v.Next = head
	s.setValidator(v)

	if !head.IsZero() {
		oldHead, ok, err := s.GetValidator(head)
		if err != nil {
			return err
		}
		if ok {
			oldHead.Pre = v.Address
			s.setValidator(oldHead)
		}
	}
	s.writeHead(v.Address)
	return nil
}

// Delete unlinks addr from the list and removes its entry from the state
// trie. It reports whether addr was present.
func (s *Staking) Delete(addr common.Address) (bool, error) {
	v, ok, err := s.GetValidator(addr)
	if err != nil || !ok {
		return false, err
	}

	if v.Pre.IsZero() {
		s.writeHead(v.Next)
	} else {
		pre, ok, err := s.GetValidator(v.Pre)
		if err != nil {
			return false, err
		}
		if ok {
			pre.Next = v.Next
			s.setValidator(pre)
		}
	}
	if !v.Next.IsZero() {
		next, ok, err := s.GetValidator(v.Next)
		if err != nil {
			return false, err
		}
		if ok {
			next.Pre = v.Pre
			s.setValidator(next)
		}
	}
	s.dirty[addr] = nil // tombstone: deleted, not merely never-loaded
	return true, nil
}

// ValidatorItems returns every validator in list order, starting at the
// head. It reads through the in-memory dirty set so changes made earlier in
// the same block are visible to a later iteration within it.
func (s *Staking) ValidatorItems() ([]*Validator, error) {
	head, err := s.readHead()
	if err != nil {
		return nil, err
	}
	var out []*Validator
	cursor := head
	seen := make(map[common.Address]bool)
	for !cursor.IsZero() {
		if seen[cursor] {
			return nil, fmt.Errorf("core: validator list cycle detected at %s", cursor)
		}
		seen[cursor] = true
		v, ok, err := s.GetValidator(cursor)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		out = append(out, v)
		cursor = v.Next
	}
	return out, nil
}

// stakingSnapshot is an opaque token returned by Snapshot and consumed by
// RevertToSnapshot; its fields are unexported so callers can only pass it
// straight back, never inspect or forge one.
type stakingSnapshot struct {
	dirty map[common.Address]*Validator
	head  *common.Address
}

// Snapshot captures the current in-memory dirty set and list head so a
// later RevertToSnapshot can undo every mutation made since, mirroring
// Balance.Snapshot for the same per-transaction atomicity guarantee.
func (s *Staking) Snapshot() stakingSnapshot {
	dirty := make(map[common.Address]*Validator, len(s.dirty))
	for addr, v := range s.dirty {
		if v == nil {
			dirty[addr] = nil
			continue
		}
		cp := *v
		dirty[addr] = &cp
	}
	var head *common.Address
	if s.head != nil {
		h := *s.head
		head = &h
	}
	return stakingSnapshot{dirty: dirty, head: head}
}

// RevertToSnapshot restores the dirty set and list head to a value
// previously returned by Snapshot.
func (s *Staking) RevertToSnapshot(snap stakingSnapshot) {
	s.dirty = snap.dirty
	s.head = snap.head
}

// Commit flushes every dirty validator entry (and the list head, if this view
// read or wrote it) to the underlying StateDB and returns the resulting state
// root.
func (s *Staking) Commit() (common.Hash, error) {
	for addr, v := range s.dirty {
		if v == nil {
			if _, err := s.state.DeleteStorage(ValidatorKey(addr)); err != nil {
				return common.Hash{}, fmt.Errorf("core: commit delete validator %s: %w", addr, err)
			}
			continue
		}
		if err := s.state.SetStorage(ValidatorKey(v.Address), v.encode()); err != nil {
			return common.Hash{}, fmt.Errorf("core: commit validator %s: %w", addr, err)
		}
	}
	if s.head != nil {
		data, err := json.Marshal(listHead{First: *s.head})
		if err != nil {
			return common.Hash{}, fmt.Errorf("core: encode validator head: %w", err)
		}
		if err := s.state.SetStorage(validatorListHead, data); err != nil {
			return common.Hash{}, fmt.Errorf("core: commit validator head: %w", err)
		}
	}
	s.dirty = make(map[common.Address]*Validator)
	return s.state.Root(), nil
}
