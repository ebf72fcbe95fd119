package transaction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowd/pkg/crypto"
)

// Kind is the action a transaction performs.
type Kind string

const (
	KindCreate   Kind = "create"   // open an escrow order
	KindFill     Kind = "fill"     // settle against an order
	KindClose    Kind = "close"    // creator closes an order
	KindApprove  Kind = "approve"  // token allowance
	KindTransfer Kind = "transfer" // token transfer, or native when asset is zero
	KindFaucet   Kind = "faucet"   // devnet credit, admin only
)

// IsLedgerOp reports whether k only touches balances and allowances.
func (k Kind) IsLedgerOp() bool {
	return k == KindApprove || k == KindTransfer || k == KindFaucet
}

var (
	ErrNonceTooLow      = errors.New("nonce too low")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMalformed        = errors.New("malformed transaction")
)

// Action is the signed payload. Amounts travel as decimal strings so
// JavaScript clients do not lose precision.
type Action struct {
	Kind      Kind           `json:"kind"`
	From      common.Address `json:"from"`
	Order     common.Address `json:"order"`
	Asset     common.Address `json:"asset"`
	Direction uint8          `json:"direction"` // 1=Buy, 2=Sell
	Policy    uint8          `json:"policy"`    // 1=Strict, 2=Clamped
	Price     uint64         `json:"price,string"`
	Qty       uint64         `json:"qty,string"`
	Value     uint64         `json:"value,string"` // attached native value
	To        common.Address `json:"to"`
	Nonce     uint64         `json:"nonce,string"`
}

// ToEIP712 converts Action to crypto.ActionEIP712 for signing/verification
func (a *Action) ToEIP712() *crypto.ActionEIP712 {
	return &crypto.ActionEIP712{
		Kind:      string(a.Kind),
		From:      a.From,
		Order:     a.Order,
		Asset:     a.Asset,
		Direction: a.Direction,
		Policy:    a.Policy,
		Price:     a.Price,
		Qty:       a.Qty,
		Value:     a.Value,
		To:        a.To,
		Nonce:     a.Nonce,
	}
}

// SignedTransaction is the wire envelope:
//
//	{"type":"fill","action":{"kind":"fill","from":"0x..","order":"0x..","qty":"2","value":"20","nonce":"4",...},"signature":"0x.."}
type SignedTransaction struct {
	Type      Kind   `json:"type"`
	Action    Action `json:"action"`
	Signature string `json:"signature"` // Hex-encoded signature (0x...)
}

// Serialize converts SignedTransaction to JSON bytes
func (tx *SignedTransaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Deserialize parses JSON bytes into SignedTransaction
func Deserialize(data []byte) (*SignedTransaction, error) {
	var tx SignedTransaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &tx, nil
}

// Validate performs structural checks. Economic checks (quantities, prices,
// balances) belong to the order engine and the ledger.
func (tx *SignedTransaction) Validate() error {
	if tx.Type == "" {
		return fmt.Errorf("%w: missing transaction type", ErrMalformed)
	}
	if tx.Signature == "" {
		return fmt.Errorf("%w: missing signature", ErrMalformed)
	}
	if tx.Action.Kind != tx.Type {
		return fmt.Errorf("%w: type %q does not match action kind %q", ErrMalformed, tx.Type, tx.Action.Kind)
	}
	a := tx.Action
	if a.From == (common.Address{}) {
		return fmt.Errorf("%w: missing sender", ErrMalformed)
	}

	switch a.Kind {
	case KindCreate:
		if a.Asset == (common.Address{}) {
			return fmt.Errorf("%w: create requires an asset", ErrMalformed)
		}
	case KindFill, KindClose:
		if a.Order == (common.Address{}) {
			return fmt.Errorf("%w: %s requires an order", ErrMalformed, a.Kind)
		}
	case KindApprove:
		if a.Asset == (common.Address{}) || a.To == (common.Address{}) {
			return fmt.Errorf("%w: approve requires asset and spender", ErrMalformed)
		}
	case KindTransfer:
		if a.To == (common.Address{}) {
			return fmt.Errorf("%w: transfer requires a recipient", ErrMalformed)
		}
	case KindFaucet:
		if a.To == (common.Address{}) {
			return fmt.Errorf("%w: faucet requires a recipient", ErrMalformed)
		}
		if a.Value == 0 && (a.Qty == 0 || a.Asset == (common.Address{})) {
			return fmt.Errorf("%w: faucet credits nothing", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown transaction type: %s", ErrMalformed, a.Kind)
	}
	return nil
}

// ParseTransaction decodes and structurally validates a raw transaction.
func ParseTransaction(data []byte) (*SignedTransaction, error) {
	tx, err := Deserialize(data)
	if err != nil {
		return nil, err
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}
