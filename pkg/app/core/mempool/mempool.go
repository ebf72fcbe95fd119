package mempool

import (
	"encoding/json"
	"errors"
	"sync"
)

// Bucket is the block-ordering class of a transaction.
type Bucket int

const (
	BucketLedger Bucket = iota // faucet, approve, transfer
	BucketClose
	BucketOrder // create, fill
)

var ErrFull = errors.New("mempool full")

// ClassifyRaw classifies a raw transaction by its JSON envelope type:
//
//	{"type": "approve"|"transfer"|"faucet", ...} -> BucketLedger
//	{"type": "close", ...}                       -> BucketClose
//	anything else                                -> BucketOrder
//
// Malformed transactions land in BucketOrder and fail at execution.
func ClassifyRaw(b []byte) Bucket {
	if len(b) == 0 || b[0] != '{' {
		return BucketOrder
	}

	var txEnvelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &txEnvelope); err != nil {
		return BucketOrder
	}

	switch txEnvelope.Type {
	case "approve", "transfer", "faucet":
		return BucketLedger
	case "close":
		return BucketClose
	default:
		return BucketOrder
	}
}

// Mempool maintains three FIFO queues, drained in order:
// (1) ledger ops, (2) closes, (3) creates and fills.
// Funding and allowances land before the orders that need them, and closes
// run before new fills can reach a closing order.
type Mempool struct {
	mu       sync.Mutex
	ledger   [][]byte
	closes   [][]byte
	orders   [][]byte
	capacity int // max pending txs; 0 is unbounded
}

func NewMempool(capacity int) *Mempool {
	return &Mempool{capacity: capacity}
}

// PushRaw classifies and enqueues a tx.
func (m *Mempool) PushRaw(b []byte) error {
	cp := append([]byte(nil), b...)
	bucket := ClassifyRaw(b)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.capacity > 0 && m.lenLocked() >= m.capacity {
		return ErrFull
	}
	switch bucket {
	case BucketLedger:
		m.ledger = append(m.ledger, cp)
	case BucketClose:
		m.closes = append(m.closes, cp)
	default:
		m.orders = append(m.orders, cp)
	}
	return nil
}

// SelectForBlock returns up to maxBytes worth of txs in bucket order,
// removing selected txs from the mempool. Selection stops at the first tx
// of a bucket that does not fit, so FIFO order within a bucket is kept.
func (m *Mempool) SelectForBlock(maxBytes int64) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out [][]byte
	var used int64

	pull := func(q *[][]byte) {
		for len(*q) > 0 {
			tx := (*q)[0]
			n := int64(len(tx))
			if maxBytes > 0 && used+n > maxBytes {
				return
			}
			out = append(out, tx)
			used += n
			*q = (*q)[1:]
		}
	}

	pull(&m.ledger)
	pull(&m.closes)
	pull(&m.orders)

	return out
}

// Len returns total pending txs.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lenLocked()
}

func (m *Mempool) lenLocked() int {
	return len(m.ledger) + len(m.closes) + len(m.orders)
}
