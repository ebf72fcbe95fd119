package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"

	"github.com/uhyunpark/escrowd/pkg/app/core/escrow"
	"github.com/uhyunpark/escrowd/pkg/storage"
)

var ErrInsufficientFunds = errors.New("insufficient native balance")

// Bank holds native balances for accounts and order escrow addresses alike.
type Bank struct {
	tx *storage.Txn
}

func NewBank(tx *storage.Txn) *Bank { return &Bank{tx: tx} }

func (b *Bank) Balance(addr common.Address) (uint64, error) {
	return b.tx.GetUint64(storage.NativeKey(addr))
}

// Credit adds amount to addr out of thin air (faucet, genesis).
func (b *Bank) Credit(addr common.Address, amount uint64) error {
	bal, err := b.Balance(addr)
	if err != nil {
		return err
	}
	sum, overflow := gethmath.SafeAdd(bal, amount)
	if overflow {
		return fmt.Errorf("%w: %s", ErrSupplyOverflow, addr.Hex())
	}
	return b.tx.SetUint64(storage.NativeKey(addr), sum)
}

func (b *Bank) Transfer(from, to common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	bal, err := b.Balance(from)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from.Hex(), bal, amount)
	}
	if err := b.tx.SetUint64(storage.NativeKey(from), bal-amount); err != nil {
		return err
	}
	return b.Credit(to, amount)
}

// Vault returns the native balance of addr as an order's value account.
func (b *Bank) Vault(addr common.Address) *Vault {
	return &Vault{bank: b, addr: addr}
}

// Vault is the escrow account of one order. Balance cannot return an error,
// so a storage failure is kept and reported by Err.
type Vault struct {
	bank *Bank
	addr common.Address
	err  error
}

func (v *Vault) Balance() uint64 {
	bal, err := v.bank.Balance(v.addr)
	if err != nil && v.err == nil {
		v.err = err
	}
	return bal
}

func (v *Vault) Pay(to common.Address, amount uint64) error {
	return v.bank.Transfer(v.addr, to, amount)
}

// Err returns the first storage error seen by Balance.
func (v *Vault) Err() error { return v.err }

var _ escrow.ValueTransfer = (*Vault)(nil)
