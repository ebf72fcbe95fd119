// Package eventlog carries committed fill and close events from the host to
// its sinks: the fill journal, Kafka, websocket clients and p2p gossip.
package eventlog

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/pkg/app/core/escrow"
)

// Entry is one committed event with its position in the chain.
type Entry struct {
	TxHash common.Hash    `json:"txHash"`
	Height uint64         `json:"height"`
	Index  int            `json:"index"` // position within the transaction
	Name   string         `json:"event"` // "fill" or "close"
	Order  common.Address `json:"order"`
	Time   time.Time      `json:"time"`
	Event  escrow.Event   `json:"data"`
}

// Sink receives committed entries. Publish is called after the state that
// produced the entries is durable, so a sink failure never rolls anything back.
type Sink interface {
	Name() string
	Publish(ctx context.Context, entries []Entry) error
}

// Buffer collects events for the duration of one call. It implements
// escrow.EventLog; the host drains it only after the call commits.
type Buffer struct {
	events []escrow.Event
}

func (b *Buffer) Record(ev escrow.Event) { b.events = append(b.events, ev) }

func (b *Buffer) Len() int { return len(b.events) }

// Entries wraps the buffered events for tx and empties the buffer.
func (b *Buffer) Entries(tx common.Hash, height uint64, at time.Time) []Entry {
	out := make([]Entry, 0, len(b.events))
	for i, ev := range b.events {
		out = append(out, Entry{
			TxHash: tx,
			Height: height,
			Index:  i,
			Name:   ev.EventName(),
			Order:  ev.OrderRef(),
			Time:   at,
			Event:  ev,
		})
	}
	b.events = nil
	return out
}

var _ escrow.EventLog = (*Buffer)(nil)

// Fanout delivers entries to every sink, logging failures.
type Fanout struct {
	logger *zap.Logger
	sinks  []Sink
}

func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	return &Fanout{logger: logger, sinks: sinks}
}

// Add registers a sink. Not safe to call concurrently with Publish.
func (f *Fanout) Add(s Sink) { f.sinks = append(f.sinks, s) }

func (f *Fanout) Publish(ctx context.Context, entries []Entry) {
	if len(entries) == 0 {
		return
	}
	for _, s := range f.sinks {
		if err := s.Publish(ctx, entries); err != nil {
			f.logger.Warn("event sink failed",
				zap.String("sink", s.Name()),
				zap.Int("entries", len(entries)),
				zap.Error(err))
		}
	}
}
