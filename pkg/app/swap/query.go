package swap

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowd/pkg/app/core/escrow"
	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/registry"
	"github.com/uhyunpark/escrowd/pkg/storage"
)

// Read methods run against a storage snapshot and do not take the call lock.

// Order returns the details of ref.
func (a *App) Order(ref common.Address) (escrow.Snapshot, error) {
	var snap escrow.Snapshot
	err := a.store.View(func(tx *storage.Txn) error {
		var rec escrow.Record
		ok, err := tx.GetJSON(storage.OrderKey(ref), &rec)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, ref.Hex())
		}
		o, err := escrow.Restore(rec)
		if err != nil {
			return err
		}
		vault := ledger.NewBank(tx).Vault(ref)
		snap = o.Details(vault)
		return vault.Err()
	})
	return snap, err
}

// Catalog lists open orders for asset.
func (a *App) Catalog(asset common.Address, limit int) ([]registry.Entry, error) {
	var out []registry.Entry
	err := a.store.View(func(tx *storage.Txn) error {
		var err error
		out, err = registry.NewCatalog(tx).ByAsset(asset, limit)
		return err
	})
	return out, err
}

func (a *App) Receipt(hash common.Hash) (Receipt, bool, error) {
	var rc Receipt
	var ok bool
	err := a.store.View(func(tx *storage.Txn) error {
		var err error
		ok, err = tx.GetJSON(storage.ReceiptKey(hash), &rc)
		return err
	})
	return rc, ok, err
}

// Nonce returns the lowest nonce addr may use next.
func (a *App) Nonce(addr common.Address) (uint64, error) {
	var n uint64
	err := a.store.View(func(tx *storage.Txn) error {
		var err error
		n, err = tx.GetUint64(storage.NonceKey(addr))
		return err
	})
	return n, err
}

// Account is addr's native balance, nonce and the token balances asked for.
type Account struct {
	Address common.Address            `json:"address"`
	Native  uint64                    `json:"native"`
	Nonce   uint64                    `json:"nonce"`
	Tokens  map[common.Address]uint64 `json:"tokens"`
}

func (a *App) Account(addr common.Address, assets ...common.Address) (Account, error) {
	acct := Account{Address: addr, Tokens: make(map[common.Address]uint64, len(assets))}
	err := a.store.View(func(tx *storage.Txn) error {
		var err error
		if acct.Native, err = ledger.NewBank(tx).Balance(addr); err != nil {
			return err
		}
		if acct.Nonce, err = tx.GetUint64(storage.NonceKey(addr)); err != nil {
			return err
		}
		tokens := ledger.NewTokens(tx)
		for _, asset := range assets {
			bal, err := tokens.Balance(asset, addr)
			if err != nil {
				return err
			}
			acct.Tokens[asset] = bal
		}
		return nil
	})
	return acct, err
}

// Allowance returns how much spender may move of owner's asset.
func (a *App) Allowance(asset, owner, spender common.Address) (uint64, error) {
	var n uint64
	err := a.store.View(func(tx *storage.Txn) error {
		var err error
		n, err = ledger.NewTokens(tx).Allowance(asset, owner, spender)
		return err
	})
	return n, err
}

// Block returns the header at height.
func (a *App) Block(height uint64) (Block, bool, error) {
	var blk Block
	var ok bool
	err := a.store.View(func(tx *storage.Txn) error {
		var err error
		ok, err = tx.GetJSON(storage.BlockKey(height), &blk)
		return err
	})
	return blk, ok, err
}

// Blocks returns up to limit headers, newest first.
func (a *App) Blocks(limit int) ([]Block, error) {
	var out []Block
	err := a.store.View(func(tx *storage.Txn) error {
		var err error
		out, err = storage.ScanJSON[Block](tx, storage.BlockPrefix(), true, limit)
		return err
	})
	return out, err
}
