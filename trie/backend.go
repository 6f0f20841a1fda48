package trie

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/crypto"
	"github.com/mapprotocol/mapchain/kv"
)

// ErrNotFound is returned when a node hash has no live payload.
var ErrNotFound = errors.New("trie: node not found")

// Backend is the content-addressed raw node store every Trie is built on.
// It corresponds to the HashDB contract of get/insert/emplace/remove/contains,
// kept separate from the keyed Trie walk so the two storage strategies below
// can share one walking algorithm.
type Backend interface {
	// Get returns the live payload for hash, or ErrNotFound.
	Get(hash common.Hash) ([]byte, error)
	// Contains reports whether hash currently has a live (positive refcount,
	// or simply present for Archive) payload.
	Contains(hash common.Hash) bool
	// Insert hashes value, stages it for writing, and returns its hash.
	Insert(value []byte) common.Hash
	// Emplace stages value under an already-known hash (used when the caller
	// computed the hash itself, e.g. re-inserting a node unchanged).
	Emplace(hash common.Hash, value []byte)
	// Remove stages a reference-count decrement (or, for Archive, is a no-op:
	// archive nodes are retained forever once written).
	Remove(hash common.Hash)
	// Commit flushes all staged changes to the backing kv.DB atomically.
	Commit() error
	// Checkpoint snapshots the in-memory staging area and returns an id that
	// can later be passed to RevertToCheckpoint, so a StateDB can undo a
	// failed transaction's trie mutations without touching disk.
	Checkpoint() int
	// RevertToCheckpoint discards every staged change made since id.
	RevertToCheckpoint(id int)
}

const nodeKeyPrefix = 't'

func nodeDBKey(hash common.Hash) []byte {
	key := make([]byte, 1+common.HashLength)
	key[0] = nodeKeyPrefix
	copy(key[1:], hash[:])
	return key
}

// ---- Archive backend ----

// Archive writes every touched node unconditionally, exactly once, and never
// garbage collects: it is the backend for nodes that must remain retrievable
// at any historical root (e.g. long-lived chain state queried by height).
type Archive struct {
	db          kv.DB
	staged      map[common.Hash][]byte
	checkpoints []map[common.Hash][]byte
}

// NewArchive returns an Archive backend over db.
func NewArchive(db kv.DB) *Archive {
	return &Archive{db: db, staged: make(map[common.Hash][]byte)}
}

func (a *Archive) Checkpoint() int {
	cp := make(map[common.Hash][]byte, len(a.staged))
	for k, v := range a.staged {
		cp[k] = v
	}
	a.checkpoints = append(a.checkpoints, cp)
	return len(a.checkpoints) - 1
}

func (a *Archive) RevertToCheckpoint(id int) {
	a.staged = a.checkpoints[id]
	a.checkpoints = a.checkpoints[:id]
}

func (a *Archive) Get(hash common.Hash) ([]byte, error) {
	if v, ok := a.staged[hash]; ok {
		return v, nil
	}
	v, err := a.db.Get(nodeDBKey(hash))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

func (a *Archive) Contains(hash common.Hash) bool {
	_, err := a.Get(hash)
	return err == nil
}

func (a *Archive) Insert(value []byte) common.Hash {
	hash := crypto.Hash256(value)
	a.staged[hash] = value
	return hash
}

func (a *Archive) Emplace(hash common.Hash, value []byte) {
	a.staged[hash] = value
}

// Remove is a no-op: archive nodes are kept forever once written.
func (a *Archive) Remove(common.Hash) {}

func (a *Archive) Commit() error {
	batch := a.db.NewBatch()
	for hash, value := range a.staged {
		batch.Set(nodeDBKey(hash), value)
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("trie: archive commit: %w", err)
	}
	a.staged = make(map[common.Hash][]byte)
	return nil
}

// ---- Reference-counted backend ----

// payload is the on-disk unit for the RefCounted backend: a node's bytes
// plus the number of live references to it across the whole state tree.
type payload struct {
	Count uint32
	Value []byte
}

func encodePayload(p payload) []byte {
	buf := make([]byte, 4+len(p.Value))
	binary.BigEndian.PutUint32(buf[:4], p.Count)
	copy(buf[4:], p.Value)
	return buf
}

func decodePayload(data []byte) payload {
	return payload{Count: binary.BigEndian.Uint32(data[:4]), Value: data[4:]}
}

// RefCounted merges net insert/remove deltas per node hash on Commit, so a
// node shared by many trie paths (e.g. a short common prefix) is only treated
// as absent once its last referencing path is gone; a node whose count drops
// to zero stays in the kv.DB with a zero count and is never physically
// deleted, while Get reports it as not found. Mirrors the
// original CachingDB.commit() reference-counting rule exactly, including the
// panic on an underflowing count: a negative total means the caller removed
// a node more times than it ever inserted it, which can only be a bug in the
// trie walk above.
type RefCounted struct {
	db     kv.DB
	values map[common.Hash][]byte
	deltas map[common.Hash]int

	checkpoints []refCountedCheckpoint
}

type refCountedCheckpoint struct {
	values map[common.Hash][]byte
	deltas map[common.Hash]int
}

// NewRefCounted returns a RefCounted backend over db.
func NewRefCounted(db kv.DB) *RefCounted {
	return &RefCounted{
		db:     db,
		values: make(map[common.Hash][]byte),
		deltas: make(map[common.Hash]int),
	}
}

func (r *RefCounted) Checkpoint() int {
	values := make(map[common.Hash][]byte, len(r.values))
	for k, v := range r.values {
		values[k] = v
	}
	deltas := make(map[common.Hash]int, len(r.deltas))
	for k, v := range r.deltas {
		deltas[k] = v
	}
	r.checkpoints = append(r.checkpoints, refCountedCheckpoint{values: values, deltas: deltas})
	return len(r.checkpoints) - 1
}

func (r *RefCounted) RevertToCheckpoint(id int) {
	cp := r.checkpoints[id]
	r.values = cp.values
	r.deltas = cp.deltas
	r.checkpoints = r.checkpoints[:id]
}

func (r *RefCounted) persisted(hash common.Hash) (payload, bool, error) {
	data, err := r.db.Get(nodeDBKey(hash))
	if errors.Is(err, kv.ErrNotFound) {
		return payload{}, false, nil
	}
	if err != nil {
		return payload{}, false, err
	}
	return decodePayload(data), true, nil
}

func (r *RefCounted) Get(hash common.Hash) ([]byte, error) {
	if v, ok := r.values[hash]; ok && r.deltas[hash] > 0 {
		return v, nil
	}
	pending := r.deltas[hash]
	p, found, err := r.persisted(hash)
	if err != nil {
		return nil, err
	}
	if !found {
		if pending > 0 {
			return r.values[hash], nil
		}
		return nil, ErrNotFound
	}
	if int(p.Count)+pending > 0 {
		return p.Value, nil
	}
	return nil, ErrNotFound
}

func (r *RefCounted) Contains(hash common.Hash) bool {
	_, err := r.Get(hash)
	return err == nil
}

func (r *RefCounted) Insert(value []byte) common.Hash {
	hash := crypto.Hash256(value)
	r.Emplace(hash, value)
	return hash
}

func (r *RefCounted) Emplace(hash common.Hash, value []byte) {
	r.values[hash] = value
	r.deltas[hash]++
}

func (r *RefCounted) Remove(hash common.Hash) {
	r.deltas[hash]--
}

func (r *RefCounted) Commit() error {
	batch := r.db.NewBatch()
	for hash, delta := range r.deltas {
		if delta == 0 {
			continue
		}
		existing, found, err := r.persisted(hash)
		if err != nil {
			return fmt.Errorf("trie: refcounted commit: read %s: %w", hash, err)
		}
		if found {
			total := int64(existing.Count) + int64(delta)
			if total < 0 {
				panic(fmt.Sprintf("trie: negative reference count for node %s", hash))
			}
			batch.Set(nodeDBKey(hash), encodePayload(payload{Count: uint32(total), Value: existing.Value}))
			continue
		}
		if delta < 0 {
			panic(fmt.Sprintf("trie: negative reference count for node %s", hash))
		}
		value, ok := r.values[hash]
		if !ok {
			return fmt.Errorf("trie: refcounted commit: no value staged for new node %s", hash)
		}
		batch.Set(nodeDBKey(hash), encodePayload(payload{Count: uint32(delta), Value: value}))
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("trie: refcounted commit: %w", err)
	}
	r.values = make(map[common.Hash][]byte)
	r.deltas = make(map[common.Hash]int)
	return nil
}
