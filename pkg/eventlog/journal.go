package eventlog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/uhyunpark/escrowd/pkg/app/core/escrow"
)

// JournalRow is one fill or close in the SQLite journal. Amounts are stored
// as decimal text: SQLite integers cannot hold a uint64 with the high bit set.
type JournalRow struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	TxHash       string    `gorm:"index;size:66" json:"txHash"`
	Height       uint64    `gorm:"index" json:"height"`
	EventIndex   int       `json:"index"`
	Kind         string    `gorm:"size:8" json:"kind"`
	OrderRef     string    `gorm:"index;size:42" json:"order"`
	Asset        string    `gorm:"size:42" json:"asset,omitempty"`
	Counterparty string    `gorm:"index;size:42" json:"counterparty,omitempty"`
	Creator      string    `gorm:"size:42" json:"creator,omitempty"`
	Direction    string    `gorm:"size:4" json:"direction,omitempty"`
	Quantity     uint64    `gorm:"serializer:json;type:text" json:"quantity"`
	UnitPrice    uint64    `gorm:"serializer:json;type:text" json:"unitPrice"`
	TotalValue   uint64    `gorm:"serializer:json;type:text" json:"totalValue"`
	Refund       uint64    `gorm:"serializer:json;type:text" json:"refund"`
	Remaining    uint64    `gorm:"serializer:json;type:text" json:"remaining"`
	Status       string    `gorm:"size:8" json:"status"`
	Auto         bool      `json:"auto"`
	CreatedAt    time.Time `json:"time"`
}

func (JournalRow) TableName() string { return "journal" }

// Journal stores committed events in SQLite for queries by order and
// counterparty.
type Journal struct {
	db *gorm.DB
}

func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	if err := db.AutoMigrate(&JournalRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (j *Journal) Name() string { return "journal" }

func (j *Journal) Publish(ctx context.Context, entries []Entry) error {
	rows := make([]JournalRow, 0, len(entries))
	for _, e := range entries {
		row := JournalRow{
			ID:         uuid.New().String(),
			TxHash:     e.TxHash.Hex(),
			Height:     e.Height,
			EventIndex: e.Index,
			Kind:       e.Name,
			OrderRef:   e.Order.Hex(),
			CreatedAt:  e.Time,
		}
		switch ev := e.Event.(type) {
		case escrow.FillEvent:
			row.Asset = ev.Asset.Hex()
			row.Counterparty = ev.Counterparty.Hex()
			row.Direction = ev.Direction.String()
			row.Quantity = ev.Quantity
			row.UnitPrice = ev.UnitPrice
			row.TotalValue = ev.TotalValue
			row.Refund = ev.Refund
			row.Remaining = ev.Remaining
			row.Status = ev.Status.String()
		case escrow.CloseEvent:
			row.Creator = ev.Creator.Hex()
			row.Refund = ev.Refund
			row.Status = escrow.Closed.String()
			row.Auto = ev.Auto
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}
	return j.db.WithContext(ctx).Create(&rows).Error
}

// ByOrder returns the events of one order, oldest first.
func (j *Journal) ByOrder(ctx context.Context, order common.Address, limit int) ([]JournalRow, error) {
	var rows []JournalRow
	err := j.db.WithContext(ctx).
		Where("order_ref = ?", order.Hex()).
		Order("height asc, event_index asc").
		Limit(limitOrAll(limit)).
		Find(&rows).Error
	return rows, err
}

// ByCounterparty returns the fills taken by addr, newest first.
func (j *Journal) ByCounterparty(ctx context.Context, addr common.Address, limit int) ([]JournalRow, error) {
	var rows []JournalRow
	err := j.db.WithContext(ctx).
		Where("kind = ? AND counterparty = ?", "fill", addr.Hex()).
		Order("height desc, event_index desc").
		Limit(limitOrAll(limit)).
		Find(&rows).Error
	return rows, err
}

// limitOrAll maps a non-positive limit to gorm's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
