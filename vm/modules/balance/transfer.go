// Package balance implements the balance.transfer method: moving native
// token value from the transaction's sender to a named recipient.
package balance

import (
	"fmt"

	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/events"
	"github.com/mapprotocol/mapchain/vm"
)

func init() {
	vm.Register(core.MethodBalanceTransfer, handleTransfer)
}

func handleTransfer(ctx *vm.Context, data []byte) error {
	p, err := core.DecodeTransferData(data)
	if err != nil {
		return fmt.Errorf("balance: decode transfer data: %w", err)
	}

	if err := ctx.Balance.Transfer(ctx.Sender, p.Recipient, p.Value); err != nil {
		return fmt.Errorf("balance: transfer: %w", err)
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventBalanceTransfer,
			TxID:        ctx.Tx.Hash(),
			BlockHeight: ctx.Block.Header.Height,
			Data: map[string]any{
				"from":  ctx.Sender.Hex(),
				"to":    p.Recipient.Hex(),
				"value": p.Value,
			},
		})
	}
	return nil
}
