package mempool

import (
	"errors"
	"testing"
)

func TestClassifyRaw(t *testing.T) {
	tests := []struct {
		name     string
		tx       string
		expected Bucket
	}{
		{"faucet", `{"type":"faucet","action":{},"signature":"0x01"}`, BucketLedger},
		{"approve", `{"type":"approve","action":{},"signature":"0x01"}`, BucketLedger},
		{"transfer", `{"type":"transfer","action":{},"signature":"0x01"}`, BucketLedger},
		{"close", `{"type":"close","action":{},"signature":"0x01"}`, BucketClose},
		{"create", `{"type":"create","action":{},"signature":"0x01"}`, BucketOrder},
		{"fill", `{"type":"fill","action":{},"signature":"0x01"}`, BucketOrder},
		{"invalid JSON defaults to order", `{"invalid": "json"`, BucketOrder},
		{"non-JSON defaults to order", "UNKNOWN:foo", BucketOrder},
		{"empty transaction", "", BucketOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyRaw([]byte(tt.tx)); got != tt.expected {
				t.Errorf("ClassifyRaw() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMempool_Ordering(t *testing.T) {
	m := NewMempool(0)

	fill1 := `{"type":"fill","signature":"0x1111"}`
	create1 := `{"type":"create","signature":"0x2222"}`
	close1 := `{"type":"close","signature":"0x3333"}`
	approve1 := `{"type":"approve","signature":"0x4444"}`
	fill2 := `{"type":"fill","signature":"0x5555"}`
	faucet1 := `{"type":"faucet","signature":"0x6666"}`

	for _, tx := range []string{fill1, create1, close1, approve1, fill2, faucet1} {
		if err := m.PushRaw([]byte(tx)); err != nil {
			t.Fatal(err)
		}
	}

	selected := m.SelectForBlock(0)
	want := []string{approve1, faucet1, close1, fill1, create1, fill2}
	if len(selected) != len(want) {
		t.Fatalf("selected %d txs, want %d", len(selected), len(want))
	}
	for i, w := range want {
		if string(selected[i]) != w {
			t.Errorf("position %d: got %s, want %s", i, selected[i], w)
		}
	}

	if m.Len() != 0 {
		t.Errorf("mempool should be empty after selection, got %d", m.Len())
	}
}

func TestMempool_ByteLimit(t *testing.T) {
	m := NewMempool(0)

	tx1 := `{"type":"fill","signature":"0x1"}`
	tx2 := `{"type":"fill","signature":"0x2"}`
	tx3 := `{"type":"fill","signature":"0x3"}`
	for _, tx := range []string{tx1, tx2, tx3} {
		m.PushRaw([]byte(tx))
	}

	limit := int64(len(tx1) + len(tx2))
	selected := m.SelectForBlock(limit)
	if len(selected) != 2 {
		t.Fatalf("selected %d txs, want 2", len(selected))
	}
	if m.Len() != 1 {
		t.Errorf("remaining = %d, want 1", m.Len())
	}

	rest := m.SelectForBlock(limit)
	if len(rest) != 1 || string(rest[0]) != tx3 {
		t.Errorf("next block = %q", rest)
	}
}

func TestMempool_Capacity(t *testing.T) {
	m := NewMempool(2)
	m.PushRaw([]byte(`{"type":"fill"}`))
	m.PushRaw([]byte(`{"type":"close"}`))
	if err := m.PushRaw([]byte(`{"type":"faucet"}`)); !errors.Is(err, ErrFull) {
		t.Fatalf("got %v, want ErrFull", err)
	}
}

func TestMempool_CopiesInput(t *testing.T) {
	m := NewMempool(0)
	buf := []byte(`{"type":"fill"}`)
	m.PushRaw(buf)
	buf[2] = 'X'
	if got := m.SelectForBlock(0); string(got[0]) != `{"type":"fill"}` {
		t.Errorf("mempool aliased caller buffer: %s", got[0])
	}
}
