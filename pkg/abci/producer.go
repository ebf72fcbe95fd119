package abci

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/pkg/util"
)

// Producer drives a single-node chain: every Interval it proposes whatever
// the application has pending and finalizes it. Empty proposals are skipped.
type Producer struct {
	App        Application
	Clock      util.Clock
	Interval   time.Duration
	MaxTxBytes int64
	Logger     *zap.Logger
}

// Run blocks until ctx is cancelled.
func (p *Producer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.Clock.After(p.Interval):
		}
		if _, err := p.Step(); err != nil {
			p.Logger.Error("finalize block failed", zap.Error(err))
		}
	}
}

// Step produces at most one block. It reports whether a block was finalized.
func (p *Producer) Step() (bool, error) {
	next := p.App.LastHeight() + 1
	prop := p.App.PrepareProposal(RequestPrepareProposal{Height: next, MaxTxBytes: p.MaxTxBytes})
	if len(prop.Txs) == 0 {
		return false, nil
	}
	if !p.App.ProcessProposal(RequestProcessProposal{Height: next, Txs: prop.Txs}).Accept {
		p.Logger.Warn("proposal rejected", zap.Uint64("height", next), zap.Int("txs", len(prop.Txs)))
		return false, nil
	}
	resp, err := p.App.FinalizeBlock(RequestFinalizeBlock{
		Height:    next,
		Timestamp: p.Clock.Now(),
		Txs:       prop.Txs,
	})
	if err != nil {
		return false, err
	}
	return resp.Accepted > 0, nil
}
