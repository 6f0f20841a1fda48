// Package txpool holds pending transactions validated against the chain's
// current head state. It never stores a reference to a block — only a
// handle to the chain — so the two never form a reference cycle.
package txpool

import (
	"fmt"
	"sync"

	"github.com/mapprotocol/mapchain/chain"
	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/metrics"
)

// TxPool is a thread-safe, fingerprinted set of pending transactions. Every
// read that needs current-head state first takes the chain's lock (inside
// bc's own methods) and only then the pool's own lock — callers must never
// reverse that order, or a concurrent insert_block can deadlock against a
// concurrent submit.
type TxPool struct {
	bc *chain.BlockChain

	mu  sync.RWMutex
	txs map[common.Hash]*core.Transaction
	ord []common.Hash // insertion order, for deterministic FIFO proposal
}

// New returns an empty TxPool backed by bc.
func New(bc *chain.BlockChain) *TxPool {
	return &TxPool{bc: bc, txs: make(map[common.Hash]*core.Transaction)}
}

func (p *TxPool) headState() (*core.Balance, error) {
	head := p.bc.CurrentBlock()
	if head == nil {
		return nil, fmt.Errorf("txpool: chain not loaded")
	}
	state := p.bc.StateAt(head.Header.StateRoot)
	return core.NewBalance(state), nil
}

// Submit validates tx against the current head state and, if acceptable,
// inserts it keyed by its hash.
func (p *TxPool) Submit(tx *core.Transaction) error {
	balance, err := p.headState()
	if err != nil {
		return err
	}
	sender := tx.Sender()
	account, err := balance.GetAccount(sender)
	if err != nil {
		return fmt.Errorf("txpool: load sender account: %w", err)
	}

	value, err := spendValue(tx)
	if err != nil {
		return fmt.Errorf("txpool: decode tx data: %w", err)
	}
	if account.Balance < value {
		return fmt.Errorf("%w: have %d need %d", core.ErrBalanceNotEnough, account.Balance, value)
	}
	if account.Nonce+1 != tx.Nonce {
		return fmt.Errorf("%w: have %d want %d", core.ErrInvalidTxNonce, tx.Nonce, account.Nonce+1)
	}

	hash := tx.Hash()
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.txs[hash]; !exists {
		p.ord = append(p.ord, hash)
	}
	p.txs[hash] = tx
	metrics.TxPoolSize.Set(float64(len(p.txs)))
	return nil
}

// GetTxs returns a snapshot of every pending transaction, in FIFO submission
// order — proposers rely on this order for deterministic block assembly.
func (p *TxPool) GetTxs() []*core.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*core.Transaction, 0, len(p.ord))
	for _, hash := range p.ord {
		if tx, ok := p.txs[hash]; ok {
			out = append(out, tx)
		}
	}
	return out
}

// NotifyBlock removes every transaction whose hash appears in b's tx list,
// called after a block is successfully imported.
func (p *TxPool) NotifyBlock(b *core.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	confirmed := make(map[common.Hash]bool, len(b.Txs))
	for _, tx := range b.Txs {
		confirmed[tx.Hash()] = true
	}
	delete0 := p.ord[:0]
	for _, hash := range p.ord {
		if confirmed[hash] {
			delete(p.txs, hash)
			continue
		}
		delete0 = append(delete0, hash)
	}
	p.ord = delete0
	metrics.TxPoolSize.Set(float64(len(p.txs)))
}

// GetNonce returns addr's current nonce as seen by the chain head (not
// counting any pending transactions still in the pool).
func (p *TxPool) GetNonce(addr common.Address) (uint64, error) {
	balance, err := p.headState()
	if err != nil {
		return 0, err
	}
	account, err := balance.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return account.Nonce, nil
}

// Size returns the number of pending transactions.
func (p *TxPool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

func spendValue(tx *core.Transaction) (uint64, error) {
	switch tx.MethodID {
	case core.MethodBalanceTransfer:
		p, err := core.DecodeTransferData(tx.Data)
		if err != nil {
			return 0, err
		}
		return p.Value, nil
	case core.MethodStakingDeposit:
		p, err := core.DecodeDepositData(tx.Data)
		if err != nil {
			return 0, err
		}
		return p.Value, nil
	default:
		return 0, nil
	}
}
