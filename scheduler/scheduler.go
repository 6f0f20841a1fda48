// Package scheduler runs the slot/epoch block-production loop: on every
// slot tick it asks the authority set who holds that slot, and if the
// answer is this node, assembles, executes, signs and imports a new block.
package scheduler

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mapprotocol/mapchain/chain"
	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/consensus"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/crypto"
	"github.com/mapprotocol/mapchain/events"
	"github.com/mapprotocol/mapchain/metrics"
	"github.com/mapprotocol/mapchain/txpool"
)

// EpochLength is the number of slots per epoch.
const EpochLength uint64 = 64

// SlotDuration is the wall-clock time allotted to each slot.
const SlotDuration = 6 * time.Second

// AuthoritySet answers "who proposes slot n of epoch e". The PoA-only build
// carries a single fixed validator list seeded at genesis; selecting among a
// dynamically staked set (by stake weight, VRF, or otherwise) is explicitly
// out of scope — see the PoS/VRF/FTS exclusion note in DESIGN.md.
type AuthoritySet interface {
	HolderAt(slotIndex, epochID uint64) (crypto.PublicKey, bool)
}

// StaticAuthority round-robins a fixed validator list across slots. An empty
// list means no slot is ever proposable.
type StaticAuthority struct {
	Validators []crypto.PublicKey
}

// HolderAt implements AuthoritySet.
func (s StaticAuthority) HolderAt(slotIndex, _ uint64) (crypto.PublicKey, bool) {
	if len(s.Validators) == 0 {
		return nil, false
	}
	return s.Validators[slotIndex%uint64(len(s.Validators))], true
}

// State is the scheduler's own run state, independent of slot content.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

// Scheduler drives the proposer loop for a single node identity.
type Scheduler struct {
	mu    sync.Mutex
	state State
	slot  uint64

	bc        *chain.BlockChain
	pool      *txpool.TxPool
	poa       *consensus.PoA
	authority AuthoritySet
	priv      crypto.PrivateKey
	pub       crypto.PublicKey
	chainID   uint64
	emitter   *events.Emitter
}

// New returns a Scheduler that proposes as pub/priv whenever authority names
// it the holder of the current slot.
func New(bc *chain.BlockChain, pool *txpool.TxPool, poa *consensus.PoA, authority AuthoritySet, priv crypto.PrivateKey, pub crypto.PublicKey, chainID uint64, emitter *events.Emitter) *Scheduler {
	return &Scheduler{
		bc:        bc,
		pool:      pool,
		poa:       poa,
		authority: authority,
		priv:      priv,
		pub:       pub,
		chainID:   chainID,
		emitter:   emitter,
		state:     StateIdle,
	}
}

// State returns the scheduler's current run state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run blocks, ticking once per SlotDuration, until exit is closed or
// receives a value. Each tick is handled synchronously: a slow proposal
// (block execution, signing, import) simply delays the next tick rather
// than overlapping with it, since a single node only ever proposes one
// block at a time.
func (s *Scheduler) Run(exit <-chan struct{}) {
	s.mu.Lock()
	s.slot = s.bc.Height() + 1
	s.state = StateRunning
	s.mu.Unlock()

	ticker := time.NewTicker(SlotDuration)
	defer ticker.Stop()

	for {
		select {
		case <-exit:
			s.mu.Lock()
			s.state = StateStopped
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick advances to the next slot (always the chain's current height + 1 —
// a slot is never retried once its window passes) and proposes if this
// node holds it.
func (s *Scheduler) tick() {
	slot := s.bc.Height() + 1

	s.mu.Lock()
	s.slot = slot
	s.mu.Unlock()

	epoch := slot / EpochLength
	holder, ok := s.authority.HolderAt(slot, epoch)
	if !ok || !holder.Equal(s.pub) {
		return
	}

	metrics.SlotProposalsAttempted.Inc()
	if err := s.propose(slot); err != nil {
		log.Printf("scheduler: propose slot %d: %v", slot, err)
		return
	}
	metrics.SlotProposalsWon.Inc()
}

// propose assembles a candidate block extending the current head, executes
// it once (off the persisted trie, via EstimateStateRoot) to learn its
// state root, signs it, and imports it through the same InsertBlock path
// every gossiped block goes through — so a locally produced block is
// validated exactly as strictly as one received from a peer.
func (s *Scheduler) propose(slot uint64) error {
	head := s.bc.CurrentBlock()
	if head == nil {
		return fmt.Errorf("scheduler: chain not loaded")
	}

	txs := s.pool.GetTxs()
	block := core.NewUnsignedBlock(head.Header.Height+1, head.Hash(), time.Now().Unix(), txs)

	miner := s.pub.Address()
	root, err := s.bc.EstimateStateRoot(head.Header.StateRoot, block, miner)
	if err != nil {
		return fmt.Errorf("estimate state root: %w", err)
	}
	block.Header.StateRoot = root
	block.Proofs = []core.BlockProof{core.NewEd25519BlockProof(s.pub)}

	block = s.poa.FinalizeBlock(block, s.priv)

	if err := s.bc.InsertBlock(block); err != nil {
		return fmt.Errorf("insert proposed block: %w", err)
	}
	s.pool.NotifyBlock(block)

	if s.emitter != nil {
		s.emitter.Emit(events.Event{
			Type:        events.EventBlockCommit,
			BlockHeight: block.Header.Height,
			Data: map[string]any{
				"slot": slot,
				"txs":  len(block.Txs),
			},
		})
	}
	return nil
}

// Address returns the address slot-proposal fees accrue to for this node.
func (s *Scheduler) Address() common.Address {
	return s.pub.Address()
}
