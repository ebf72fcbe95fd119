package escrow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"
)

// Fill settles up to requested units of the order against caller.
//
// value is the native value caller attached to the call; the host has already
// credited it to the order's escrow account. It only matters for Sell orders,
// where it pays for the asset.
//
// Ordering: validate, move the asset, update remaining/status, then move
// native value and refunds. Any reentrant call made from inside the ledger
// sees the pre-fill order; any made from inside Pay sees the post-fill order.
func (o *Order) Fill(env Env, caller common.Address, requested, value uint64) (FillEvent, error) {
	const op = "fill"

	plan, err := o.planFill(env, caller, requested, value)
	if err != nil {
		return FillEvent{}, err
	}
	qty, total := plan.qty, plan.total
	from, to, payee := plan.from, plan.to, plan.payee

	ok, err := env.Ledger.TransferFrom(from, to, qty)
	if err != nil || !ok {
		e := newError(op, o.ref, ErrAssetTransferFailed, "from=%s to=%s amount=%d", from.Hex(), to.Hex(), qty)
		e.Cause = err
		return FillEvent{}, e
	}

	// The ledger is untrusted and may have called back into this order.
	if !o.IsActive() {
		return FillEvent{}, newError(op, o.ref, ErrOrderClosed, "closed during asset transfer")
	}
	if o.remaining < qty {
		return FillEvent{}, newError(op, o.ref, ErrExceedsAvailable, "remaining=%d after asset transfer, fill=%d", o.remaining, qty)
	}

	prevRemaining, prevStatus := o.remaining, o.status
	o.remaining -= qty
	if o.remaining == 0 {
		o.status = Closed
	}
	rollback := func(err error) (FillEvent, error) {
		o.remaining, o.status = prevRemaining, prevStatus
		return FillEvent{}, fmt.Errorf("fill %s: %w", o.ref.Hex(), err)
	}

	if err := env.Vault.Pay(payee, total); err != nil {
		return rollback(fmt.Errorf("pay %s: %w", payee.Hex(), err))
	}

	var refund uint64
	if o.direction == Sell && value > total {
		refund = value - total
		if err := env.Vault.Pay(caller, refund); err != nil {
			return rollback(fmt.Errorf("refund excess payment: %w", err))
		}
	}

	var residual uint64
	if o.status == Closed {
		residual, err = o.refundResidual(env)
		if err != nil {
			return rollback(err)
		}
	}

	ev := FillEvent{
		Order:        o.ref,
		Asset:        o.asset,
		Counterparty: caller,
		Direction:    o.direction,
		Quantity:     qty,
		UnitPrice:    o.unitPrice,
		TotalValue:   total,
		Refund:       refund,
		Remaining:    o.remaining,
		Status:       o.status,
		Block:        env.Block,
	}
	env.record(ev)
	if o.status == Closed {
		env.record(CloseEvent{Order: o.ref, Creator: o.creator, Refund: residual, Auto: true, Block: env.Block})
	}
	return ev, nil
}

func (o *Order) escrowBalance(env Env) uint64 {
	if env.Vault == nil {
		return 0
	}
	return env.Vault.Balance()
}

// CheckFill runs the validation Fill performs before touching any
// collaborator. The host calls it before parking a Sell payment in escrow so
// the caller gets the order's error rather than a funding error.
func (o *Order) CheckFill(env Env, caller common.Address, requested, value uint64) error {
	_, err := o.planFill(env, caller, requested, value)
	return err
}

type fillPlan struct {
	qty, total      uint64
	from, to, payee common.Address
}

func (o *Order) planFill(env Env, caller common.Address, requested, value uint64) (fillPlan, error) {
	const op = "fill"

	if !o.IsActive() {
		return fillPlan{}, newError(op, o.ref, ErrOrderClosed, "")
	}
	if caller == o.creator {
		return fillPlan{}, newError(op, o.ref, ErrSelfTrade, "")
	}
	if requested == 0 {
		return fillPlan{}, newError(op, o.ref, ErrInvalidQuantity, "requested quantity must be greater than 0")
	}

	qty := requested
	if requested > o.remaining {
		if o.policy == Strict {
			return fillPlan{}, newError(op, o.ref, ErrExceedsAvailable, "requested=%d remaining=%d", requested, o.remaining)
		}
		qty = o.remaining
	}

	total, overflow := gethmath.SafeMul(qty, o.unitPrice)
	if overflow {
		return fillPlan{}, newError(op, o.ref, ErrArithmeticOverflow, "quantity=%d price=%d", qty, o.unitPrice)
	}

	plan := fillPlan{qty: qty, total: total}
	switch o.direction {
	case Buy:
		if bal := o.escrowBalance(env); bal < total {
			return fillPlan{}, newError(op, o.ref, ErrInsufficientEscrow, "escrow=%d total=%d", bal, total)
		}
		plan.from, plan.to, plan.payee = caller, o.creator, caller
	case Sell:
		if value < total {
			return fillPlan{}, newError(op, o.ref, ErrInsufficientPayment, "value=%d total=%d", value, total)
		}
		plan.from, plan.to, plan.payee = o.creator, caller, o.creator
	default:
		return fillPlan{}, newError(op, o.ref, ErrInvalidDirection, "direction=%d", o.direction)
	}
	return plan, nil
}
