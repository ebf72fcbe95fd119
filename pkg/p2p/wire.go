package p2p

import (
	"encoding/json"
	"fmt"

	"github.com/uhyunpark/escrowd/pkg/eventlog"
)

// EventBatch is the gossip payload: the committed entries of one transaction.
// Event bodies stay raw so observers need not know every event type.
type EventBatch struct {
	Origin  string      `json:"origin"` // peer ID of the executing node
	Entries []WireEntry `json:"entries"`
}

type WireEntry struct {
	TxHash string          `json:"txHash"`
	Height uint64          `json:"height"`
	Index  int             `json:"index"`
	Name   string          `json:"event"`
	Order  string          `json:"order"`
	Data   json.RawMessage `json:"data"`
}

func encodeBatch(origin string, entries []eventlog.Entry) ([]byte, error) {
	batch := EventBatch{Origin: origin, Entries: make([]WireEntry, 0, len(entries))}
	for _, e := range entries {
		data, err := json.Marshal(e.Event)
		if err != nil {
			return nil, fmt.Errorf("encode %s event: %w", e.Name, err)
		}
		batch.Entries = append(batch.Entries, WireEntry{
			TxHash: e.TxHash.Hex(),
			Height: e.Height,
			Index:  e.Index,
			Name:   e.Name,
			Order:  e.Order.Hex(),
			Data:   data,
		})
	}
	return json.Marshal(batch)
}

func decodeBatch(b []byte) (EventBatch, error) {
	var batch EventBatch
	if err := json.Unmarshal(b, &batch); err != nil {
		return EventBatch{}, err
	}
	return batch, nil
}
