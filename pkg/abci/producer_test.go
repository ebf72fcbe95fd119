package abci

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/pkg/util"
)

type mockApp struct {
	pending  [][]byte
	reject   bool
	height   uint64
	finalize []RequestFinalizeBlock
}

func (m *mockApp) LastHeight() uint64 { return m.height }

func (m *mockApp) PrepareProposal(RequestPrepareProposal) ResponsePrepareProposal {
	txs := m.pending
	m.pending = nil
	return ResponsePrepareProposal{Txs: txs}
}

func (m *mockApp) ProcessProposal(RequestProcessProposal) ResponseProcessProposal {
	return ResponseProcessProposal{Accept: !m.reject}
}

func (m *mockApp) FinalizeBlock(req RequestFinalizeBlock) (ResponseFinalizeBlock, error) {
	m.finalize = append(m.finalize, req)
	m.height = req.Height
	return ResponseFinalizeBlock{Height: req.Height, Accepted: len(req.Txs)}, nil
}

func newProducer(app Application) *Producer {
	return &Producer{
		App:      app,
		Clock:    util.NewStepClock(time.Unix(100, 0), time.Second),
		Interval: time.Millisecond,
		Logger:   zap.NewNop(),
	}
}

func TestStep(t *testing.T) {
	tests := []struct {
		name    string
		pending [][]byte
		reject  bool
		want    bool
	}{
		{"empty mempool skips the block", nil, false, false},
		{"pending txs finalize", [][]byte{[]byte("a"), []byte("b")}, false, true},
		{"rejected proposal", [][]byte{[]byte("a")}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := &mockApp{pending: tt.pending, reject: tt.reject}
			got, err := newProducer(app).Step()
			if err != nil {
				t.Fatalf("step: %v", err)
			}
			if got != tt.want {
				t.Errorf("produced = %v, want %v", got, tt.want)
			}
			if tt.want && (len(app.finalize) != 1 || app.finalize[0].Height != 1) {
				t.Errorf("finalize calls = %+v", app.finalize)
			}
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := newProducer(&mockApp{}).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("run = %v", err)
	}
}
