// Package statedb exposes the keyed get/set/commit/root contract the rest of
// the node uses to read and mutate chain state, built on top of a trie.Trie.
// Callers are responsible for hashing their semantic keys (an account
// address, a validator's storage slot) before calling in — StateDB stores
// exactly the bytes it's given under exactly the key it's given.
package statedb

import (
	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/trie"
)

type snapshot struct {
	root      common.Hash
	backendCP int
}

// StateDB is a snapshot/rollback-capable view over a trie.Trie. Reads and
// writes apply to the trie immediately (so Root() always reflects everything
// written so far); RevertToSnapshot undoes both the trie's root pointer and
// the backend's staged node changes together, so a failed transaction leaves
// no trace in either.
type StateDB struct {
	backend trie.Backend
	tr      *trie.Trie

	snapshots []snapshot
}

// New returns a StateDB rooted at root (pass trie.EmptyRoot for a fresh
// state) backed by the given trie.Backend (an Archive or RefCounted).
func New(backend trie.Backend, root common.Hash) *StateDB {
	return &StateDB{backend: backend, tr: trie.New(backend, root)}
}

// GetStorage returns the value stored under key, or (nil, false) if absent.
func (s *StateDB) GetStorage(key common.Hash) ([]byte, bool, error) {
	return s.tr.Get(key[:])
}

// SetStorage stores value under key.
func (s *StateDB) SetStorage(key common.Hash, value []byte) error {
	return s.tr.Insert(key[:], value)
}

// DeleteStorage removes key. It reports whether the key was present.
func (s *StateDB) DeleteStorage(key common.Hash) (bool, error) {
	return s.tr.Delete(key[:])
}

// Root returns the state root reflecting every write applied so far,
// without persisting anything to the underlying kv.DB. Safe to call before
// a block header is signed.
func (s *StateDB) Root() common.Hash {
	return s.tr.Root()
}

// Snapshot records the current state so a later RevertToSnapshot can undo
// every write made since, including trie nodes already staged in the
// backend. Returns an id to pass to RevertToSnapshot.
func (s *StateDB) Snapshot() int {
	s.snapshots = append(s.snapshots, snapshot{
		root:      s.tr.Root(),
		backendCP: s.backend.Checkpoint(),
	})
	return len(s.snapshots) - 1
}

// RevertToSnapshot restores the state to exactly what it was when Snapshot
// returned id, discarding every write made since — in both the trie's root
// pointer and the backend's staged node changes.
func (s *StateDB) RevertToSnapshot(id int) {
	snap := s.snapshots[id]
	s.backend.RevertToCheckpoint(snap.backendCP)
	s.tr.SetRoot(snap.root)
	s.snapshots = s.snapshots[:id]
}

// Commit flushes every staged trie node to the underlying kv.DB and clears
// the snapshot stack (a commit closes out the current block; there is
// nothing left to roll back to).
func (s *StateDB) Commit() error {
	if err := s.backend.Commit(); err != nil {
		return err
	}
	s.snapshots = nil
	return nil
}
