// Package registry keeps the discovery catalog of open orders and announces
// listings and updates to outside consumers.
package registry

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowd/pkg/app/core/escrow"
	"github.com/uhyunpark/escrowd/pkg/storage"
)

// Entry is one open order in the catalog.
type Entry struct {
	Order     common.Address    `json:"order"`
	Asset     common.Address    `json:"asset"`
	Creator   common.Address    `json:"creator"`
	OrderType string            `json:"orderType"`
	Direction escrow.Direction  `json:"direction"`
	Policy    escrow.FillPolicy `json:"policy"`
	UnitPrice uint64            `json:"unitPrice"`
	Remaining uint64            `json:"remaining"`
	ListedAt  uint64            `json:"listedAt"`
	UpdatedAt uint64            `json:"updatedAt"`
	LastTx    common.Hash       `json:"lastTx"`
}

// Catalog indexes open orders by asset inside the caller's storage
// transaction. Closed orders are removed.
type Catalog struct {
	tx *storage.Txn
}

func NewCatalog(tx *storage.Txn) *Catalog { return &Catalog{tx: tx} }

// Sync writes the catalog row for snap, or deletes it once the order closed.
func (c *Catalog) Sync(snap escrow.Snapshot, height uint64, txHash common.Hash) error {
	key := storage.CatalogKey(snap.Asset, snap.Ref)
	if snap.Status == escrow.Closed {
		return c.tx.Delete(key)
	}
	var e Entry
	found, err := c.tx.GetJSON(key, &e)
	if err != nil {
		return err
	}
	if !found {
		e.ListedAt = height
	}
	e.Order = snap.Ref
	e.Asset = snap.Asset
	e.Creator = snap.Creator
	e.OrderType = snap.OrderType
	e.Direction = snap.Direction
	e.Policy = snap.Policy
	e.UnitPrice = snap.UnitPrice
	e.Remaining = snap.Remaining
	e.UpdatedAt = height
	e.LastTx = txHash
	return c.tx.SetJSON(key, e)
}

// ByAsset lists open orders for asset.
func (c *Catalog) ByAsset(asset common.Address, limit int) ([]Entry, error) {
	return storage.ScanJSON[Entry](c.tx, storage.CatalogPrefix(asset), false, limit)
}
