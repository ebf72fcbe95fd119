package api

import (
	"github.com/uhyunpark/escrowd/pkg/app/core/escrow"
	"github.com/uhyunpark/escrowd/pkg/app/swap"
	"github.com/uhyunpark/escrowd/pkg/eventlog"
	"github.com/uhyunpark/escrowd/pkg/registry"
	"github.com/uhyunpark/escrowd/pkg/util"
)

// API response types for REST endpoints and WebSocket messages.
// Native amounts are returned both in base units and as 8-decimal strings.

// ==============================
// REST Response Types
// ==============================

type SubmitTxResponse struct {
	Status  string        `json:"status"` // "queued" or the receipt status
	TxHash  string        `json:"txHash"`
	Receipt *swap.Receipt `json:"receipt,omitempty"` // only for ?sync=true
}

// OrderInfo is an order's details with display amounts.
type OrderInfo struct {
	escrow.Snapshot
	Filled               uint64 `json:"filled"`
	UnitPriceDisplay     string `json:"unitPriceDisplay"`
	EscrowBalanceDisplay string `json:"escrowBalanceDisplay"`
}

func newOrderInfo(s escrow.Snapshot) OrderInfo {
	return OrderInfo{
		Snapshot:             s,
		Filled:               s.Filled(),
		UnitPriceDisplay:     util.FormatUnits(s.UnitPrice),
		EscrowBalanceDisplay: util.FormatUnits(s.EscrowBalance),
	}
}

// CatalogEntry is an open order as listed per asset.
type CatalogEntry struct {
	registry.Entry
	UnitPriceDisplay string `json:"unitPriceDisplay"`
}

type AccountInfo struct {
	swap.Account
	NativeDisplay string `json:"nativeDisplay"`
}

type AllowanceInfo struct {
	Asset     string `json:"asset"`
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance uint64 `json:"allowance"`
}

// JournalEntry is one journal row with display amounts.
type JournalEntry struct {
	eventlog.JournalRow
	TotalValueDisplay string `json:"totalValueDisplay"`
	RefundDisplay     string `json:"refundDisplay"`
}

func newJournalEntries(rows []eventlog.JournalRow) []JournalEntry {
	out := make([]JournalEntry, len(rows))
	for i, r := range rows {
		out[i] = JournalEntry{
			JournalRow:        r,
			TotalValueDisplay: util.FormatUnits(r.TotalValue),
			RefundDisplay:     util.FormatUnits(r.Refund),
		}
	}
	return out
}

type ChainStatus struct {
	ChainID     int64  `json:"chainId"`
	Height      uint64 `json:"height"`
	MempoolSize int    `json:"mempoolSize"`
	WSClients   int    `json:"wsClients"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients to manage subscriptions.
// Channels: "events" for everything, "order:<address>" for one order.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSEvent is pushed for every committed fill or close.
type WSEvent struct {
	Type    string `json:"type"` // "fill" or "close"
	Channel string `json:"channel"`
	eventlog.Entry
}
