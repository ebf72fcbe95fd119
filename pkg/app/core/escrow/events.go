package escrow

import "github.com/ethereum/go-ethereum/common"

// Event is an immutable record of a completed fill or close.
type Event interface {
	OrderRef() common.Address
	EventName() string
}

// FillEvent describes one settled fill.
type FillEvent struct {
	Order        common.Address `json:"order"`
	Asset        common.Address `json:"asset"`
	Counterparty common.Address `json:"counterparty"`
	Direction    Direction      `json:"direction"`
	Quantity     uint64         `json:"quantity"`
	UnitPrice    uint64         `json:"unitPrice"`
	TotalValue   uint64         `json:"totalValue"`
	Refund       uint64         `json:"refund"` // excess payment returned to the counterparty
	Remaining    uint64         `json:"remaining"`
	Status       Status         `json:"status"`
	Block        uint64         `json:"block"`
}

func (e FillEvent) OrderRef() common.Address { return e.Order }
func (FillEvent) EventName() string { return "fill" }

// CloseEvent describes an order transitioning to Closed.
type CloseEvent struct {
	Order   common.Address `json:"order"`
	Creator common.Address `json:"creator"`
	Refund  uint64         `json:"refund"` // residual escrow returned to the creator
	Auto    bool           `json:"auto"`   // closed by a fill exhausting the quantity
	Block   uint64         `json:"block"`
}

func (e CloseEvent) OrderRef() common.Address { return e.Order }
func (CloseEvent) EventName() string { return "close" }
