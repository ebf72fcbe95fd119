package swap

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/escrowd/pkg/app/core/escrow"
	"github.com/uhyunpark/escrowd/pkg/app/core/transaction"
	"github.com/uhyunpark/escrowd/pkg/eventlog"
	"github.com/uhyunpark/escrowd/pkg/ledger"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// ReceiptEvent is an event as stored in a receipt.
type ReceiptEvent struct {
	Name  string          `json:"event"`
	Order common.Address  `json:"order"`
	Data  json.RawMessage `json:"data"`
}

// Receipt is the durable outcome of an executed transaction.
type Receipt struct {
	TxHash    common.Hash      `json:"txHash"`
	Height    uint64           `json:"height"`
	Type      transaction.Kind `json:"type"`
	From      common.Address   `json:"from"`
	Nonce     uint64           `json:"nonce"`
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	ErrorKind string           `json:"errorKind,omitempty"`
	Order     common.Address   `json:"order"`
	Events    []ReceiptEvent   `json:"events"`
}

func (r Receipt) OK() bool { return r.Status == StatusOK }

func (r Receipt) walLine() string {
	line := fmt.Sprintf("%d %s %s %s nonce=%d %s", r.Height, r.TxHash.Hex(), r.Type, r.From.Hex(), r.Nonce, r.Status)
	if r.ErrorKind != "" {
		line += " " + r.ErrorKind
	}
	return line
}

func (r Receipt) hash() ([32]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return [32]byte{}, fmt.Errorf("marshal receipt %s: %w", r.TxHash.Hex(), err)
	}
	return sha256.Sum256(data), nil
}

func receiptEvents(entries []eventlog.Entry) ([]ReceiptEvent, error) {
	out := make([]ReceiptEvent, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e.Event)
		if err != nil {
			return nil, fmt.Errorf("marshal %s event: %w", e.Name, err)
		}
		out = append(out, ReceiptEvent{Name: e.Name, Order: e.Order, Data: data})
	}
	return out, nil
}

// Block is the header stored for every non-empty block.
type Block struct {
	Height  uint64        `json:"height"`
	Time    time.Time     `json:"time"`
	Txs     []common.Hash `json:"txs"`
	AppHash common.Hash   `json:"appHash"`
}

// newBlock computes the block's app hash.
//
// Components hashed (in order):
//  1. Block height (8 bytes, big-endian)
//  2. Block time (8 bytes, big-endian unix nanoseconds)
//  3. sha256 of every receipt's JSON, in execution order
func newBlock(height uint64, ts time.Time, receipts []Receipt) (Block, error) {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], height)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(ts.UnixNano()))
	h.Write(buf[:])

	blk := Block{Height: height, Time: ts.UTC(), Txs: make([]common.Hash, 0, len(receipts))}
	for _, r := range receipts {
		rh, err := r.hash()
		if err != nil {
			return Block{}, err
		}
		h.Write(rh[:])
		blk.Txs = append(blk.Txs, r.TxHash)
	}
	copy(blk.AppHash[:], h.Sum(nil))
	return blk, nil
}

// errorKind names err for receipts and API clients.
func errorKind(err error) string {
	if k := escrow.KindName(err); k != "" {
		return k
	}
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return "OrderNotFound"
	case errors.Is(err, ErrOrderExists):
		return "OrderExists"
	case errors.Is(err, ErrNotFaucetAdmin):
		return "Unauthorized"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "InsufficientFunds"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ledger.ErrInsufficientAllowance):
		return "InsufficientAllowance"
	case errors.Is(err, ledger.ErrSupplyOverflow):
		return "SupplyOverflow"
	case errors.Is(err, transaction.ErrMalformed):
		return "Malformed"
	default:
		return "Internal"
	}
}
