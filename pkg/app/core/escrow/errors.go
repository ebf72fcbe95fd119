package escrow

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Error kinds. Every rejected operation wraps exactly one of these so callers
// can branch with errors.Is.
var (
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrInsufficientEscrow  = errors.New("insufficient escrow")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrOrderClosed         = errors.New("order closed")
	ErrSelfTrade           = errors.New("self trade")
	ErrExceedsAvailable    = errors.New("exceeds available quantity")
	ErrAssetTransferFailed = errors.New("asset transfer failed")
	ErrNotCreator          = errors.New("caller is not the creator")
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")

	// Parameter errors outside the settlement taxonomy.
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidPolicy    = errors.New("invalid fill policy")
)

var kindNames = map[error]string{
	ErrInvalidQuantity:     "InvalidQuantity",
	ErrInvalidPrice:        "InvalidPrice",
	ErrInsufficientEscrow:  "InsufficientEscrow",
	ErrInsufficientPayment: "InsufficientPayment",
	ErrOrderClosed:         "OrderClosed",
	ErrSelfTrade:           "SelfTrade",
	ErrExceedsAvailable:    "ExceedsAvailable",
	ErrAssetTransferFailed: "AssetTransferFailed",
	ErrNotCreator:          "NotCreator",
	ErrArithmeticOverflow:  "ArithmeticOverflow",
	ErrInvalidDirection:    "InvalidDirection",
	ErrInvalidPolicy:       "InvalidPolicy",
}

// Error is a rejected escrow operation.
type Error struct {
	Kind   error          // one of the Err* sentinels above
	Op     string         // "create", "fill", "close"
	Order  common.Address // escrow address of the order (zero on create)
	Detail string
	Cause  error // collaborator failure, if any
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Order.Hex(), e.Kind)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

// KindName returns the taxonomy name of err ("SelfTrade", ...), or "" when
// err does not carry an escrow error kind.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return kindNames[e.Kind]
	}
	for kind, name := range kindNames {
		if errors.Is(err, kind) {
			return name
		}
	}
	return ""
}

func newError(op string, order common.Address, kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Order: order, Detail: fmt.Sprintf(format, args...)}
}
