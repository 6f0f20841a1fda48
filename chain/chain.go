// Package chain implements the block-chain engine: genesis setup, the
// insert_block validation/execution/persistence pipeline, and read access to
// historical blocks and state. It sits above chaindb (persistence), vm
// (execution), and consensus (authority verification) — kept out of the
// core package purely to avoid the import cycle those three packages'
// own dependency on core would otherwise create.
package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mapprotocol/mapchain/chaindb"
	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/consensus"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/crypto"
	"github.com/mapprotocol/mapchain/events"
	"github.com/mapprotocol/mapchain/metrics"
	"github.com/mapprotocol/mapchain/statedb"
	"github.com/mapprotocol/mapchain/trie"
	"github.com/mapprotocol/mapchain/vm"
)

// ChainSpec is the compile-time genesis configuration: the initial account
// allocation, the seed validator set, the chain id mixed into every
// transaction's signing digest, and the genesis authority key PoA falls
// back to when a block carries no BlockProof of its own.
type ChainSpec struct {
	ChainID                uint64
	GenesisTime            int64
	Alloc                  map[common.Address]uint64
	GenesisValidators      []core.Validator
	GenesisAuthorityPubKey crypto.PublicKey
}

// BlockChain is the canonical-chain engine: it owns the chain store, the
// state trie backend, the executor, and the authority verifier, and
// enforces that only a linear extension of the current head is ever
// accepted.
type BlockChain struct {
	mu sync.RWMutex

	cdb      *chaindb.ChainDB
	backend  trie.Backend
	executor *vm.Executor
	poa      *consensus.PoA
	spec     ChainSpec

	head *core.Block
}

// New returns a BlockChain. Call Load before using it.
func New(cdb *chaindb.ChainDB, backend trie.Backend, spec ChainSpec, emitter *events.Emitter) *BlockChain {
	return &BlockChain{
		cdb:      cdb,
		backend:  backend,
		executor: vm.NewExecutor(spec.ChainID, emitter),
		poa:      consensus.New(spec.GenesisAuthorityPubKey),
		spec:     spec,
	}
}

// Load reads the persisted head from the chain store, writing genesis first
// if the store is empty.
func (bc *BlockChain) Load() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	headHash, err := bc.cdb.Head()
	if errors.Is(err, core.ErrNotFound) {
		return bc.setupGenesis()
	}
	if err != nil {
		return fmt.Errorf("chain: load head: %w", err)
	}
	head, err := bc.cdb.GetBlock(headHash)
	if err != nil {
		return fmt.Errorf("chain: load head block: %w", err)
	}
	bc.head = head
	metrics.ChainHeadHeight.Set(float64(head.Header.Height))
	return nil
}

// setupGenesis builds the genesis state from the configured allocation and
// validator seed list, synthesizes the genesis block, and writes it. It is
// idempotent: if a block already exists at height 0, it just loads the
// current head instead. Must be called with bc.mu held.
func (bc *BlockChain) setupGenesis() error {
	if _, err := bc.cdb.GetBlockByHeight(0); err == nil {
		headHash, err := bc.cdb.Head()
		if err != nil {
			return fmt.Errorf("chain: genesis present but head missing: %w", err)
		}
		head, err := bc.cdb.GetBlock(headHash)
		if err != nil {
			return fmt.Errorf("chain: load head block: %w", err)
		}
		bc.head = head
		return nil
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("chain: check genesis: %w", err)
	}

	state := statedb.New(bc.backend, trie.EmptyRoot)
	balance := core.NewBalance(state)
	for addr, amount := range bc.spec.Alloc {
		if err := balance.AddBalance(addr, amount); err != nil {
			return fmt.Errorf("chain: genesis alloc %s: %w", addr, err)
		}
	}
	if _, err := balance.Commit(); err != nil {
		return fmt.Errorf("chain: commit genesis balances: %w", err)
	}

	staking := core.NewStaking(state)
	for i := range bc.spec.GenesisValidators {
		v := bc.spec.GenesisValidators[i]
		if err := staking.Insert(&v); err != nil {
			return fmt.Errorf("chain: genesis validator %s: %w", v.Address, err)
		}
	}
	root, err := staking.Commit()
	if err != nil {
		return fmt.Errorf("chain: commit genesis validators: %w", err)
	}

	if err := state.Commit(); err != nil {
		return fmt.Errorf("chain: flush genesis state: %w", err)
	}

	genesis := &core.Block{
		Header: core.Header{
			Height:     0,
			ParentHash: common.ZeroHash,
			TxRoot:     core.ComputeTxRoot(nil),
			StateRoot:  root,
			Time:       bc.spec.GenesisTime,
		},
		Proofs: []core.BlockProof{core.NewEd25519BlockProof(bc.spec.GenesisAuthorityPubKey)},
	}
	genesis.Header.SignRoot = core.ComputeSignRoot(nil)

	if err := bc.cdb.PutBlock(genesis); err != nil {
		return fmt.Errorf("chain: write genesis: %w", err)
	}
	bc.head = genesis
	metrics.ChainHeadHeight.Set(0)
	return nil
}

// CurrentBlock returns the current head block.
func (bc *BlockChain) CurrentBlock() *core.Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.head
}

// Height returns the current head's height.
func (bc *BlockChain) Height() uint64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.head == nil {
		return 0
	}
	return bc.head.Header.Height
}

// GenesisHash returns the hash of the block at height 0.
func (bc *BlockChain) GenesisHash() (common.Hash, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	genesis, err := bc.cdb.GetBlockByHeight(0)
	if err != nil {
		return common.Hash{}, err
	}
	return genesis.Hash(), nil
}

// GetBlockByNumber returns the canonical block at height.
func (bc *BlockChain) GetBlockByNumber(height uint64) (*core.Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.cdb.GetBlockByHeight(height)
}

// GetBlock returns the block with the given hash.
func (bc *BlockChain) GetBlock(hash common.Hash) (*core.Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.cdb.GetBlock(hash)
}

// StateAt returns a read-only StateDB view rooted at root. Callers must not
// call Commit on it; only InsertBlock advances persisted state.
func (bc *BlockChain) StateAt(root common.Hash) *statedb.StateDB {
	return statedb.New(bc.backend, root)
}

// minerAddress derives the fee recipient from the block's own authority
// proof, falling back to the genesis authority when the block carries none.
func minerAddress(block *core.Block, genesisPub crypto.PublicKey) common.Address {
	if len(block.Proofs) > 0 && block.Proofs[0].TypeTag == core.BlockProofTypeEd25519 {
		return block.Proofs[0].Ed25519PublicKey().Address()
	}
	return genesisPub.Address()
}

// EstimateStateRoot runs block's transactions against parentRoot purely to
// compute the resulting state root, then undoes every staged trie mutation
// via a state snapshot/revert — node hashes are content-addressed, so the
// returned root is valid and reproducible even though nothing was kept
// staged. The proposer uses this to fill in a candidate block's state_root
// before signing it; the real, to-be-persisted execution happens again,
// from scratch, inside InsertBlock.
func (bc *BlockChain) EstimateStateRoot(parentRoot common.Hash, block *core.Block, miner common.Address) (common.Hash, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	state := statedb.New(bc.backend, parentRoot)
	id := state.Snapshot()
	defer state.RevertToSnapshot(id)

	return bc.executor.ExecuteBlock(state, block, miner)
}

// InsertBlock runs the full validate/execute/persist/advance pipeline. On
// any failure nothing is persisted: the store and head are left exactly as
// they were before the call.
func (bc *BlockChain) InsertBlock(block *core.Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	height := block.Header.Height

	// 1. Duplicate check.
	if _, err := bc.cdb.GetBlockByHeight(height); err == nil {
		return core.ErrKnownBlock
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("chain: check duplicate: %w", err)
	}

	// 2. Parent existence.
	parent, err := bc.cdb.GetBlock(block.Header.ParentHash)
	if errors.Is(err, core.ErrNotFound) {
		return core.ErrUnknownAncestor
	} else if err != nil {
		return fmt.Errorf("chain: load parent: %w", err)
	}

	// 3. Linear extension: only the current head may be extended.
	if bc.head == nil || bc.head.Hash() != block.Header.ParentHash {
		return core.ErrUnknownAncestor
	}

	// 4. Header validation.
	if block.Header.Height != parent.Header.Height+1 {
		return core.ErrInvalidBlockHeight
	}
	if block.Header.Time <= parent.Header.Time {
		return core.ErrInvalidBlockTime
	}

	// 5. Body validation: tx_root and sign_root must match the actual lists.
	if err := block.VerifyIntegrity(); err != nil {
		return err
	}

	// 6. Execution: apply txs against the parent's state, verify state_root.
	state := statedb.New(bc.backend, parent.Header.StateRoot)
	miner := minerAddress(block, bc.spec.GenesisAuthorityPubKey)
	root, err := bc.executor.ExecuteBlock(state, block, miner)
	if err != nil {
		return fmt.Errorf("chain: execute block: %w", err)
	}
	if root != block.Header.StateRoot {
		return fmt.Errorf("%w: state_root got %s want %s", core.ErrMismatchHash, root, block.Header.StateRoot)
	}

	// 7. Authority verification.
	if err := bc.poa.Verify(block); err != nil {
		return err
	}

	// 8. Persist & advance. The state flush happens first so a crash between
	// it and the block write leaves an orphaned trie, never a block whose
	// state was never durably written.
	if err := state.Commit(); err != nil {
		return fmt.Errorf("chain: commit state: %w", err)
	}
	if err := bc.cdb.PutBlock(block); err != nil {
		return fmt.Errorf("chain: persist block: %w", err)
	}
	bc.head = block
	metrics.BlocksImported.Inc()
	metrics.ChainHeadHeight.Set(float64(block.Header.Height))
	return nil
}
