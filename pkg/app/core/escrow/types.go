package escrow

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Direction is the side the order creator takes.
// Buy: creator escrows native value and receives the asset.
// Sell: creator delivers the asset (via allowance) and receives native value.
type Direction uint8

const (
	Buy  Direction = 1
	Sell Direction = 2
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

func (d Direction) Valid() bool { return d == Buy || d == Sell }

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDirection, d)
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseDirection accepts "buy"/"sell" (any case) or "1"/"2".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "1":
		return Buy, nil
	case "sell", "2":
		return Sell, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

// FillPolicy decides what happens when a fill requests more than remains.
type FillPolicy uint8

const (
	// Strict rejects oversize fills with ErrExceedsAvailable ("offer" flavor).
	Strict FillPolicy = 1
	// Clamped fills min(requested, remaining) ("order" flavor).
	Clamped FillPolicy = 2
)

func (p FillPolicy) String() string {
	switch p {
	case Strict:
		return "strict"
	case Clamped:
		return "clamped"
	default:
		return "unknown"
	}
}

func (p FillPolicy) Valid() bool { return p == Strict || p == Clamped }

func (p FillPolicy) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolicy, p)
	}
	return []byte(p.String()), nil
}

func (p *FillPolicy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePolicy accepts "strict"/"clamped" (any case) or "1"/"2".
func ParsePolicy(s string) (FillPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "1":
		return Strict, nil
	case "clamped", "2":
		return Clamped, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// Status is the order lifecycle state. Active -> Closed is one-way.
type Status uint8

const (
	Active Status = iota
	Closed
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "active":
		*s = Active
	case "closed":
		*s = Closed
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// OrderType is the display label of a direction/policy pair.
// Clamped orders are "orders", strict orders are "offers".
func OrderType(d Direction, p FillPolicy) string {
	kind := "Order"
	if p == Strict {
		kind = "Offer"
	}
	switch d {
	case Buy:
		return "Buy" + kind
	case Sell:
		return "Sell" + kind
	default:
		return kind
	}
}

// Params are the creation parameters of an order.
type Params struct {
	Creator   common.Address
	Asset     common.Address
	Direction Direction
	Policy    FillPolicy
	UnitPrice uint64 // native units per whole asset unit
	Quantity  uint64
}

// Snapshot is a read-only view of an order.
type Snapshot struct {
	Ref           common.Address `json:"ref"`
	Creator       common.Address `json:"creator"`
	Asset         common.Address `json:"asset"`
	Direction     Direction      `json:"direction"`
	Policy        FillPolicy     `json:"policy"`
	OrderType     string         `json:"orderType"`
	UnitPrice     uint64         `json:"unitPrice"`
	Quantity      uint64         `json:"quantity"`
	Remaining     uint64         `json:"remaining"`
	Status        Status         `json:"status"`
	EscrowBalance uint64         `json:"escrowBalance"`
	CreatedAt     uint64         `json:"createdAt"`
}

// Filled returns the quantity already settled.
func (s Snapshot) Filled() uint64 { return s.Quantity - s.Remaining }
