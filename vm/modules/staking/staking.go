// Package staking implements the staking.deposit and staking.validate
// methods: registering (or topping up) a validator's deposit queue, and
// activating a validator by moving its queued deposit into its effective
// balance.
package staking

import (
	"fmt"

	"github.com/mapprotocol/mapchain/core"
	"github.com/mapprotocol/mapchain/events"
	"github.com/mapprotocol/mapchain/vm"
)

func init() {
	vm.Register(core.MethodStakingDeposit, handleDeposit)
	vm.Register(core.MethodStakingValidate, handleValidate)
}

func handleDeposit(ctx *vm.Context, data []byte) error {
	p, err := core.DecodeDepositData(data)
	if err != nil {
		return fmt.Errorf("staking: decode deposit data: %w", err)
	}
	if err := ctx.Balance.SubBalance(ctx.Sender, p.Value); err != nil {
		return fmt.Errorf("staking: deposit: %w", err)
	}

	v, ok, err := ctx.Staking.GetValidator(ctx.Sender)
	if err != nil {
		return fmt.Errorf("staking: load validator: %w", err)
	}
	if !ok {
		v = &core.Validator{Address: ctx.Sender, PubKey: p.PubKey}
	}
	v.DepositQueue += p.Value
	if err := ctx.Staking.Insert(v); err != nil {
		return fmt.Errorf("staking: insert validator: %w", err)
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventStakingDeposit,
			TxID:        ctx.Tx.Hash(),
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"address": ctx.Sender.Hex(), "value": p.Value},
		})
	}
	return nil
}

func handleValidate(ctx *vm.Context, data []byte) error {
	p, err := core.DecodeValidateData(data)
	if err != nil {
		return fmt.Errorf("staking: decode validate data: %w", err)
	}

	v, ok, err := ctx.Staking.GetValidator(ctx.Sender)
	if err != nil {
		return fmt.Errorf("staking: load validator: %w", err)
	}
	if !ok {
		return fmt.Errorf("staking: %s has no deposit to activate", ctx.Sender)
	}

	v.EffectiveBalance += v.DepositQueue
	v.DepositQueue = 0
	v.ActivateHeight = p.ActivateHeight
	if err := ctx.Staking.Insert(v); err != nil {
		return fmt.Errorf("staking: update validator: %w", err)
	}

	if ctx.Emitter != nil {
		ctx.Emitter.Emit(events.Event{
			Type:        events.EventStakingValidate,
			TxID:        ctx.Tx.Hash(),
			BlockHeight: ctx.Block.Header.Height,
			Data:        map[string]any{"address": ctx.Sender.Hex(), "activate_height": p.ActivateHeight},
		})
	}
	return nil
}
