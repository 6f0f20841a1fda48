// Package vm dispatches a transaction's method_id to the interpreter module
// that applies it, via a self-registering Handler registry, then wraps that
// dispatch in the executor's fee/nonce/snapshot bookkeeping.
package vm

import (
	"github.com/mapprotocol/mapchain/common"
	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/events"
)

// Context is passed to every Handler and provides access to the dirty
// account/validator views, the current block, the triggering transaction,
// and the event emitter.
type Context struct {
	Balance *core.Balance
	Staking *core.Staking
	Block   *core.Block
	Tx      *core.Transaction
	Sender  common.Address
	Emitter *events.Emitter
}
