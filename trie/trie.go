package trie

import (
	"fmt"

	"github.com/mapprotocol/mapchain/common"
)

// Trie is a keyed view over a Backend: Get/Insert/Delete take a raw byte key
// (already expected to be a fixed-size digest — callers hash their semantic
// keys before calling in, exactly as the account and validator stores do),
// walk it nibble by nibble, and rebuild the minimal set of branch/extension/
// leaf nodes touched along the way.
type Trie struct {
	backend Backend
	root    common.Hash
}

// New returns a Trie over backend rooted at root. Pass trie.EmptyRoot for a
// fresh, empty trie.
func New(backend Backend, root common.Hash) *Trie {
	return &Trie{backend: backend, root: root}
}

// EmptyRoot is the root hash of a trie containing no keys.
var EmptyRoot = common.Hash{}

// Root returns the current root hash.
func (t *Trie) Root() common.Hash { return t.root }

// SetRoot forces the current root, used by StateDB to implement
// snapshot/rollback alongside a Backend checkpoint.
func (t *Trie) SetRoot(root common.Hash) { t.root = root }

func (t *Trie) resolve(hash common.Hash) (*node, error) {
	data, err := t.backend.Get(hash)
	if err != nil {
		return nil, err
	}
	return decodeNode(data)
}

// Get returns the value stored at key, or (nil, false, nil) if absent.
func (t *Trie) Get(key []byte) ([]byte, bool, error) {
	if t.root.IsZero() {
		return nil, false, nil
	}
	return t.get(t.root, keyToNibbles(key))
}

func (t *Trie) get(hash common.Hash, nibbles []byte) ([]byte, bool, error) {
	n, err := t.resolve(hash)
	if err != nil {
		if err == ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	switch n.Kind {
	case kindLeaf:
		if equalBytes(n.Path, nibbles) {
			return n.Value, true, nil
		}
		return nil, false, nil
	case kindExtension:
		if len(nibbles) < len(n.Path) || !equalBytes(n.Path, nibbles[:len(n.Path)]) {
			return nil, false, nil
		}
		return t.get(n.Child, nibbles[len(n.Path):])
	case kindBranch:
		if len(nibbles) == 0 {
			if n.Branch == nil {
				return nil, false, nil
			}
			return n.Branch, true, nil
		}
		child := n.Children[nibbles[0]]
		if child.IsZero() {
			return nil, false, nil
		}
		return t.get(child, nibbles[1:])
	}
	return nil, false, fmt.Errorf("trie: corrupt node kind %d", n.Kind)
}

// Contains reports whether key is present.
func (t *Trie) Contains(key []byte) (bool, error) {
	_, ok, err := t.Get(key)
	return ok, err
}

// Insert sets key to value, creating or rewriting nodes along the path.
// Every superseded node hash is released via Backend.Remove so a RefCounted
// backend can garbage collect it once no other path references it.
func (t *Trie) Insert(key, value []byte) error {
	newRoot, err := t.insert(t.root, keyToNibbles(key), value)
	if err != nil {
		return err
	}
	t.root = newRoot
	return nil
}

func (t *Trie) storeLeaf(path, value []byte) common.Hash {
	n := &node{Kind: kindLeaf, Path: path, Value: value}
	return t.backend.Insert(n.encode())
}

func (t *Trie) storeExtension(path []byte, child common.Hash) common.Hash {
	n := &node{Kind: kindExtension, Path: path, Child: child}
	return t.backend.Insert(n.encode())
}

func (t *Trie) storeBranch(children [16]common.Hash, value []byte) common.Hash {
	n := &node{Kind: kindBranch, Children: children, Branch: value}
	return t.backend.Insert(n.encode())
}

func (t *Trie) insert(hash common.Hash, nibbles, value []byte) (common.Hash, error) {
	if hash.IsZero() {
		return t.storeLeaf(nibbles, value), nil
	}

	n, err := t.resolve(hash)
	if err != nil {
		return common.Hash{}, err
	}
	t.backend.Remove(hash)

	switch n.Kind {
	case kindLeaf:
		return t.insertAtShort(n, hash, true, nibbles, value)
	case kindExtension:
		return t.insertAtShort(n, hash, false, nibbles, value)
	case kindBranch:
		if len(nibbles) == 0 {
			var children [16]common.Hash
			copy(children[:], n.Children[:])
			return t.storeBranch(children, value), nil
		}
		idx := nibbles[0]
		childHash := n.Children[idx]
		newChild, err := t.insert(childHash, nibbles[1:], value)
		if err != nil {
			return common.Hash{}, err
		}
		var children [16]common.Hash
		copy(children[:], n.Children[:])
		children[idx] = newChild
		return t.storeBranch(children, n.Branch), nil
	}
	return common.Hash{}, fmt.Errorf("trie: corrupt node kind %d", n.Kind)
}

// insertAtShort handles inserting into a leaf or extension node, splitting
// it into a branch (optionally wrapped in an extension) at the first
// differing nibble.
func (t *Trie) insertAtShort(n *node, _ common.Hash, isLeaf bool, nibbles, value []byte) (common.Hash, error) {
	shared := commonPrefixLen(n.Path, nibbles)

	// Exact match: replace the value/child in place.
	if shared == len(n.Path) && shared == len(nibbles) {
		if isLeaf {
			return t.storeLeaf(n.Path, value), nil
		}
		// Re-inserting at an identical extension path is unreachable for
		// keyed inserts (extensions never terminate a key), but handle it
		// defensively by recursing into the child.
		newChild, err := t.insert(n.Child, nil, value)
		if err != nil {
			return common.Hash{}, err
		}
		return t.storeExtension(n.Path, newChild), nil
	}

	// Build a branch at the divergence point.
	var children [16]common.Hash
	var branchValue []byte

	// Existing branch's remaining path after the shared prefix.
	oldRemainder := n.Path[shared:]
	if len(oldRemainder) == 0 {
		if isLeaf {
			branchValue = n.Value
		} else {
			// Extension with zero-length remainder collapses directly into
			// its child; re-point a branch slot is unreachable since an
			// extension always has at least one nibble. Treat as corrupt.
			return common.Hash{}, fmt.Errorf("trie: corrupt extension with empty path")
		}
	} else {
		idx := oldRemainder[0]
		rest := oldRemainder[1:]
		var childHash common.Hash
		if isLeaf {
			childHash = t.storeLeaf(rest, n.Value)
		} else if len(rest) == 0 {
			childHash = n.Child
		} else {
			childHash = t.storeExtension(rest, n.Child)
		}
		children[idx] = childHash
	}

	// New key's remaining path after the shared prefix.
	newRemainder := nibbles[shared:]
	if len(newRemainder) == 0 {
		branchValue = value
	} else {
		idx := newRemainder[0]
		rest := newRemainder[1:]
		children[idx] = t.storeLeaf(rest, value)
	}

	branchHash := t.storeBranch(children, branchValue)
	if shared == 0 {
		return branchHash, nil
	}
	return t.storeExtension(n.Path[:shared], branchHash), nil
}

// Delete removes key. It reports whether the key was present.
func (t *Trie) Delete(key []byte) (bool, error) {
	if t.root.IsZero() {
		return false, nil
	}
	newRoot, existed, err := t.delete(t.root, keyToNibbles(key))
	if err != nil {
		return false, err
	}
	if existed {
		t.root = newRoot
	}
	return existed, nil
}

func (t *Trie) delete(hash common.Hash, nibbles []byte) (common.Hash, bool, error) {
	n, err := t.resolve(hash)
	if err != nil {
		if err == ErrNotFound {
			return common.Hash{}, false, nil
		}
		return common.Hash{}, false, err
	}

	switch n.Kind {
	case kindLeaf:
		if !equalBytes(n.Path, nibbles) {
			return common.Hash{}, false, nil
		}
		t.backend.Remove(hash)
		return common.Hash{}, true, nil

	case kindExtension:
		if len(nibbles) < len(n.Path) || !equalBytes(n.Path, nibbles[:len(n.Path)]) {
			return common.Hash{}, false, nil
		}
		newChild, existed, err := t.delete(n.Child, nibbles[len(n.Path):])
		if err != nil || !existed {
			return common.Hash{}, existed, err
		}
		t.backend.Remove(hash)
		if newChild.IsZero() {
			return common.Hash{}, true, nil
		}
		merged, err := t.mergeExtension(n.Path, newChild)
		return merged, true, err

	case kindBranch:
		var children [16]common.Hash
		copy(children[:], n.Children[:])
		branchValue := n.Branch

		if len(nibbles) == 0 {
			if branchValue == nil {
				return common.Hash{}, false, nil
			}
			branchValue = nil
		} else {
			idx := nibbles[0]
			if children[idx].IsZero() {
				return common.Hash{}, false, nil
			}
			newChild, existed, err := t.delete(children[idx], nibbles[1:])
			if err != nil || !existed {
				return common.Hash{}, existed, err
			}
			children[idx] = newChild
		}
		t.backend.Remove(hash)
		return t.collapseBranch(children, branchValue)
	}
	return common.Hash{}, false, fmt.Errorf("trie: corrupt node kind %d", n.Kind)
}

// mergeExtension folds an extension's path into its (now-resolved) child
// when possible, avoiding a chain of single-nibble extensions after deletes.
func (t *Trie) mergeExtension(path []byte, child common.Hash) (common.Hash, error) {
	n, err := t.resolve(child)
	if err != nil {
		return common.Hash{}, err
	}
	switch n.Kind {
	case kindLeaf:
		t.backend.Remove(child)
		return t.storeLeaf(append(append([]byte{}, path...), n.Path...), n.Value), nil
	case kindExtension:
		t.backend.Remove(child)
		return t.storeExtension(append(append([]byte{}, path...), n.Path...), n.Child), nil
	default:
		return t.storeExtension(path, child), nil
	}
}

// collapseBranch simplifies a branch once a child slot becomes empty: a
// branch left with a single child and no value folds, via mergeExtension,
// into a single leaf or extension (or an extension over a child branch); a
// branch left with a value and no children
// folds into a bare leaf.
func (t *Trie) collapseBranch(children [16]common.Hash, value []byte) (common.Hash, bool, error) {
	count := 0
	var onlyIdx byte
	for i, c := range children {
		if !c.IsZero() {
			count++
			onlyIdx = byte(i)
		}
	}

	switch {
	case count == 0 && value != nil:
		return t.storeLeaf(nil, value), true, nil
	case count == 1 && value == nil:
		merged, err := t.mergeExtension([]byte{onlyIdx}, children[onlyIdx])
		return merged, true, err
	default:
		return t.storeBranch(children, value), true, nil
	}
}
