package escrow

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"
)

// Order is one escrowed limit order. Creator, asset, direction, policy,
// price and quantity never change after Create; remaining only decreases;
// status only moves Active -> Closed.
//
// An Order is not safe for concurrent use. The host serializes every call.
type Order struct {
	ref       common.Address // escrow account holding the order's native balance
	creator   common.Address
	asset     common.Address
	direction Direction
	policy    FillPolicy
	unitPrice uint64
	quantity  uint64
	remaining uint64
	status    Status
	createdAt uint64
}

// Create validates p and opens an order. deposited is the native value the
// creator attached; for Buy orders it must cover quantity*unitPrice and is held
// whole (any excess is returned on close). Sell orders take no deposit.
func Create(ref common.Address, p Params, deposited uint64, block uint64) (*Order, error) {
	const op = "create"
	if !p.Direction.Valid() {
		return nil, newError(op, ref, ErrInvalidDirection, "direction=%d", p.Direction)
	}
	if !p.Policy.Valid() {
		return nil, newError(op, ref, ErrInvalidPolicy, "policy=%d", p.Policy)
	}
	if p.Quantity == 0 {
		return nil, newError(op, ref, ErrInvalidQuantity, "quantity must be greater than 0")
	}
	if p.UnitPrice == 0 {
		return nil, newError(op, ref, ErrInvalidPrice, "price must be greater than 0")
	}

	// quantity*price must be representable for either direction, otherwise
	// the order could never be filled in full.
	required, overflow := gethmath.SafeMul(p.Quantity, p.UnitPrice)
	if overflow {
		return nil, newError(op, ref, ErrArithmeticOverflow, "quantity=%d price=%d", p.Quantity, p.UnitPrice)
	}
	if p.Direction == Buy && deposited < required {
		return nil, newError(op, ref, ErrInsufficientEscrow, "deposited=%d required=%d", deposited, required)
	}

	return &Order{
		ref:       ref,
		creator:   p.Creator,
		asset:     p.Asset,
		direction: p.Direction,
		policy:    p.Policy,
		unitPrice: p.UnitPrice,
		quantity:  p.Quantity,
		remaining: p.Quantity,
		status:    Active,
		createdAt: block,
	}, nil
}

func (o *Order) Ref() common.Address { return o.ref }
func (o *Order) Creator() common.Address { return o.creator }
func (o *Order) Asset() common.Address { return o.asset }
func (o *Order) Direction() Direction { return o.direction }
func (o *Order) Policy() FillPolicy { return o.policy }
func (o *Order) UnitPrice() uint64 { return o.unitPrice }
func (o *Order) Remaining() uint64 { return o.remaining }
func (o *Order) Status() Status { return o.status }
func (o *Order) IsActive() bool { return o.status == Active }

// Details returns a snapshot of every field. The escrow balance is read from
// vault, which may be nil when the caller has no balance view.
func (o *Order) Details(vault ValueTransfer) Snapshot {
	var bal uint64
	if vault != nil {
		bal = vault.Balance()
	}
	return Snapshot{
		Ref:           o.ref,
		Creator:       o.creator,
		Asset:         o.asset,
		Direction:     o.direction,
		Policy:        o.policy,
		OrderType:     OrderType(o.direction, o.policy),
		UnitPrice:     o.unitPrice,
		Quantity:      o.quantity,
		Remaining:     o.remaining,
		Status:        o.status,
		EscrowBalance: bal,
		CreatedAt:     o.createdAt,
	}
}

// Close refunds the residual escrow to the creator and closes the order.
// Closing an already closed order is a no-op and returns a nil event.
func (o *Order) Close(env Env, caller common.Address) (*CloseEvent, error) {
	const op = "close"
	if caller != o.creator {
		return nil, newError(op, o.ref, ErrNotCreator, "caller=%s", caller.Hex())
	}
	if o.status == Closed {
		return nil, nil
	}

	o.status = Closed
	refund, err := o.refundResidual(env)
	if err != nil {
		o.status = Active
		return nil, fmt.Errorf("close %s: %w", o.ref.Hex(), err)
	}

	ev := CloseEvent{Order: o.ref, Creator: o.creator, Refund: refund, Block: env.Block}
	env.record(ev)
	return &ev, nil
}

// refundResidual pays whatever the escrow account still holds to the creator.
func (o *Order) refundResidual(env Env) (uint64, error) {
	if env.Vault == nil {
		return 0, nil
	}
	residual := env.Vault.Balance()
	if residual == 0 {
		return 0, nil
	}
	if err := env.Vault.Pay(o.creator, residual); err != nil {
		return 0, fmt.Errorf("refund creator: %w", err)
	}
	return residual, nil
}

// Record is the persisted form of an order.
type Record struct {
	Ref       common.Address `json:"ref"`
	Creator   common.Address `json:"creator"`
	Asset     common.Address `json:"asset"`
	Direction Direction      `json:"direction"`
	Policy    FillPolicy     `json:"policy"`
	UnitPrice uint64         `json:"unitPrice"`
	Quantity  uint64         `json:"quantity"`
	Remaining uint64         `json:"remaining"`
	Status    Status         `json:"status"`
	CreatedAt uint64         `json:"createdAt"`
}

// Record returns the persisted form of o.
func (o *Order) Record() Record {
	return Record{
		Ref:       o.ref,
		Creator:   o.creator,
		Asset:     o.asset,
		Direction: o.direction,
		Policy:    o.policy,
		UnitPrice: o.unitPrice,
		Quantity:  o.quantity,
		Remaining: o.remaining,
		Status:    o.status,
		CreatedAt: o.createdAt,
	}
}

// Restore rebuilds an order from its persisted form, checking invariants.
func Restore(r Record) (*Order, error) {
	if !r.Direction.Valid() || !r.Policy.Valid() {
		return nil, fmt.Errorf("restore %s: bad direction/policy %d/%d", r.Ref.Hex(), r.Direction, r.Policy)
	}
	if r.Quantity == 0 || r.UnitPrice == 0 {
		return nil, fmt.Errorf("restore %s: zero quantity or price", r.Ref.Hex())
	}
	if r.Remaining > r.Quantity {
		return nil, fmt.Errorf("restore %s: remaining %d exceeds quantity %d", r.Ref.Hex(), r.Remaining, r.Quantity)
	}
	if r.Remaining == 0 && r.Status != Closed {
		return nil, fmt.Errorf("restore %s: exhausted order is not closed", r.Ref.Hex())
	}
	return &Order{
		ref:       r.Ref,
		creator:   r.Creator,
		asset:     r.Asset,
		direction: r.Direction,
		policy:    r.Policy,
		unitPrice: r.UnitPrice,
		quantity:  r.Quantity,
		remaining: r.Remaining,
		status:    r.Status,
		createdAt: r.CreatedAt,
	}, nil
}
