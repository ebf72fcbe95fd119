package ledger

import (
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"

	"github.com/uhyunpark/escrowd/pkg/app/core/escrow"
	"github.com/uhyunpark/escrowd/pkg/storage"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient token balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrSupplyOverflow        = errors.New("balance overflow")
)

// UnlimitedAllowance is never decremented by TransferFrom.
const UnlimitedAllowance = math.MaxUint64

// Tokens is the fungible-token ledger: balances and allowances per asset,
// read and written through one storage transaction.
type Tokens struct {
	tx *storage.Txn
}

func NewTokens(tx *storage.Txn) *Tokens { return &Tokens{tx: tx} }

func (t *Tokens) Balance(asset, owner common.Address) (uint64, error) {
	return t.tx.GetUint64(storage.BalanceKey(asset, owner))
}

func (t *Tokens) Allowance(asset, owner, spender common.Address) (uint64, error) {
	return t.tx.GetUint64(storage.AllowanceKey(asset, owner, spender))
}

// Approve sets the amount spender may move out of owner's balance.
func (t *Tokens) Approve(asset, owner, spender common.Address, amount uint64) error {
	return t.tx.SetUint64(storage.AllowanceKey(asset, owner, spender), amount)
}

// Mint credits amount of asset to to.
func (t *Tokens) Mint(asset, to common.Address, amount uint64) error {
	return t.credit(asset, to, amount)
}

// Transfer moves amount of asset from from to to.
func (t *Tokens) Transfer(asset, from, to common.Address, amount uint64) error {
	bal, err := t.Balance(asset, from)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientBalance, from.Hex(), bal, amount)
	}
	if err := t.tx.SetUint64(storage.BalanceKey(asset, from), bal-amount); err != nil {
		return err
	}
	return t.credit(asset, to, amount)
}

// TransferFrom moves amount of asset from from to to under spender's allowance.
func (t *Tokens) TransferFrom(asset, spender, from, to common.Address, amount uint64) error {
	allowance, err := t.Allowance(asset, from, spender)
	if err != nil {
		return err
	}
	if allowance < amount {
		return fmt.Errorf("%w: %s allows %s %d, needs %d", ErrInsufficientAllowance, from.Hex(), spender.Hex(), allowance, amount)
	}
	if err := t.Transfer(asset, from, to, amount); err != nil {
		return err
	}
	if allowance == UnlimitedAllowance {
		return nil
	}
	return t.Approve(asset, from, spender, allowance-amount)
}

func (t *Tokens) credit(asset, to common.Address, amount uint64) error {
	bal, err := t.Balance(asset, to)
	if err != nil {
		return err
	}
	sum, overflow := gethmath.SafeAdd(bal, amount)
	if overflow {
		return fmt.Errorf("%w: %s", ErrSupplyOverflow, to.Hex())
	}
	return t.tx.SetUint64(storage.BalanceKey(asset, to), sum)
}

// For binds the ledger to one asset and spender, the shape an order sees.
func (t *Tokens) For(asset, spender common.Address) AssetView {
	return AssetView{tokens: t, asset: asset, spender: spender}
}

// AssetView is the token ledger of a single asset as seen by one spender.
type AssetView struct {
	tokens  *Tokens
	asset   common.Address
	spender common.Address
}

// TransferFrom reports false for a refused transfer (balance or allowance)
// and an error only when storage fails.
func (v AssetView) TransferFrom(from, to common.Address, amount uint64) (bool, error) {
	err := v.tokens.TransferFrom(v.asset, v.spender, from, to, amount)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrInsufficientBalance), errors.Is(err, ErrInsufficientAllowance), errors.Is(err, ErrSupplyOverflow):
		return false, nil
	default:
		return false, err
	}
}

var _ escrow.AssetLedger = AssetView{}
