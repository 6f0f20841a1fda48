package vm

import (
	"fmt"
	"log"

	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/events"
	"github.com/mapprotocol/mapchain/metrics"
	"github.com/mapprotocol/mapchain/statedb"
)

// TransferFee is the flat fee every transaction pays, taken once its
// signature, nonce and balance-sufficiency checks pass — regardless of
// whether the dispatched method itself succeeds.
const TransferFee uint64 = 10_000

// Executor applies a block's transactions to state deterministically, in
// submission order, using the global method-id Handler registry.
type Executor struct {
	chainID uint64
	emitter *events.Emitter
}

// NewExecutor creates an Executor bound to chainID (the constant mixed into
// every transaction's signing digest).
func NewExecutor(chainID uint64, emitter *events.Emitter) *Executor {
	return &Executor{chainID: chainID, emitter: emitter}
}

// ExecuteBlock applies every transaction in block against state, crediting
// miner with TransferFee for each one that actually paid it (see executeTx),
// then commits the Balance and Staking views and returns the resulting state
// root. A single transaction's failure is logged and skipped; it never
// aborts the rest of the block.
func (e *Executor) ExecuteBlock(state *statedb.StateDB, block *core.Block, miner common.Address) (common.Hash, error) {
	balance := core.NewBalance(state)
	staking := core.NewStaking(state)

	var feesCollected uint64
	for _, tx := range block.Txs {
		paidFee, err := e.executeTx(balance, staking, block, tx)
		if err != nil {
			log.Printf("[vm] tx %x skipped: %v", tx.Hash(), err)
			e.emitSkipped(block, tx, err)
			metrics.TxSkipped.Inc()
		} else {
			metrics.TxExecuted.Inc()
		}
		if paidFee {
			feesCollected += TransferFee
		}
	}

	if feesCollected > 0 {
		if err := balance.AddBalance(miner, feesCollected); err != nil {
			return common.Hash{}, fmt.Errorf("vm: credit miner: %w", err)
		}
	}

	if _, err := balance.Commit(); err != nil {
		return common.Hash{}, err
	}
	root, err := staking.Commit()
	if err != nil {
		return common.Hash{}, err
	}
	return root, nil
}

// executeTx verifies and applies a single transaction, making its effect
// atomic: verification and sufficiency checks happen before any state is
// touched, and only the dispatched method's own effect is unwound if it
// fails — the fee and nonce, once taken, are never undone. The returned bool
// reports whether the fee was actually taken, so the caller knows whether
// this transaction should count toward the miner's reward: a signature,
// nonce, or sufficiency failure never touches state and never pays a fee, but
// every transaction that clears those checks pays regardless of whether its
// dispatched method goes on to succeed.
func (e *Executor) executeTx(balance *core.Balance, staking *core.Staking, block *core.Block, tx *core.Transaction) (bool, error) {
	if err := tx.VerifySign(e.chainID); err != nil {
		return false, fmt.Errorf("%w: %v", core.ErrInvalidSignData, err)
	}
	sender := tx.Sender()

	account, err := balance.GetAccount(sender)
	if err != nil {
		return false, err
	}
	if tx.Nonce != account.Nonce+1 {
		return false, fmt.Errorf("%w: have %d want %d", core.ErrInvalidTxNonce, tx.Nonce, account.Nonce+1)
	}

	value, err := spendValue(tx)
	if err != nil {
		return false, err
	}
	if account.Balance < value+TransferFee {
		return false, fmt.Errorf("%w: have %d need %d", core.ErrBalanceNotEnough, account.Balance, value+TransferFee)
	}

	if err := balance.SubBalance(sender, TransferFee); err != nil {
		return false, err
	}
	if err := balance.IncNonce(sender); err != nil {
		return false, err
	}

	balanceSnap := balance.Snapshot()
	stakingSnap := staking.Snapshot()

	ctx := &Context{
		Balance: balance,
		Staking: staking,
		Block:   block,
		Tx:      tx,
		Sender:  sender,
		Emitter: e.emitter,
	}
	if err := globalRegistry.Execute(tx.MethodID, ctx, tx.Data); err != nil {
		balance.RevertToSnapshot(balanceSnap)
		staking.RevertToSnapshot(stakingSnap)
		return true, err
	}

	if e.emitter != nil {
		e.emitter.Emit(events.Event{
			Type:        events.EventTxExecuted,
			TxID:        tx.Hash(),
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"method": tx.MethodID.String(), "sender": sender.Hex()},
		})
	}
	return true, nil
}

func (e *Executor) emitSkipped(block *core.Block, tx *core.Transaction, cause error) {
	if e.emitter == nil {
		return
	}
	e.emitter.Emit(events.Event{
		Type:        events.EventTxSkipped,
		TxID:        tx.Hash(),
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"reason": cause.Error()},
	})
}

// spendValue returns the balance a transaction moves out of its sender's
// account before fees, used for the pre-dispatch sufficiency check. Methods
// that don't move a value (staking.validate) spend nothing up front.
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
