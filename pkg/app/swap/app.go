// Package swap is the host application. It serializes every call, gives
// each transaction its own atomic storage batch, and turns committed order
// activity into receipts, blocks and published events.
package swap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/params"
	"github.com/uhyunpark/escrowd/pkg/abci"
	"github.com/uhyunpark/escrowd/pkg/app/core/mempool"
	"github.com/uhyunpark/escrowd/pkg/app/core/transaction"
	"github.com/uhyunpark/escrowd/pkg/crypto"
	"github.com/uhyunpark/escrowd/pkg/eventlog"
	"github.com/uhyunpark/escrowd/pkg/registry"
	"github.com/uhyunpark/escrowd/pkg/storage"
	"github.com/uhyunpark/escrowd/pkg/util"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderExists    = errors.New("order already exists")
	ErrNotFaucetAdmin = errors.New("sender is not the faucet admin")
	ErrNonceExhausted = errors.New("nonce space exhausted")
)

type Config struct {
	ChainID      int64
	FaucetAdmin  common.Address // zero disables the faucet
	MinBlockTime time.Duration
	MaxTxBytes   int64
	MempoolSize  int
}

// ConfigFrom maps node configuration onto the application.
func ConfigFrom(c params.Config) (Config, error) {
	cfg := Config{
		ChainID:      c.Chain.ID,
		MinBlockTime: c.Node.MinBlockTime,
		MaxTxBytes:   int64(c.Node.MaxTxBytes),
		MempoolSize:  c.Node.MempoolSize,
	}
	if c.Chain.FaucetAdmin != "" {
		if !common.IsHexAddress(c.Chain.FaucetAdmin) {
			return cfg, fmt.Errorf("faucet admin %q is not an address", c.Chain.FaucetAdmin)
		}
		cfg.FaucetAdmin = common.HexToAddress(c.Chain.FaucetAdmin)
	}
	return cfg, nil
}

type App struct {
	mu sync.Mutex

	cfg      Config
	store    *storage.PebbleStore
	verifier *transaction.Verifier
	mempool  *mempool.Mempool
	events   *eventlog.Fanout
	registry registry.Notifier
	wal      storage.WAL
	clock    util.Clock
	logger   *zap.Logger

	height  uint64
	appHash common.Hash
}

type Option func(*App)

func WithFanout(f *eventlog.Fanout) Option    { return func(a *App) { a.events = f } }
func WithRegistry(n registry.Notifier) Option { return func(a *App) { a.registry = n } }
func WithWAL(w storage.WAL) Option            { return func(a *App) { a.wal = w } }
func WithClock(c util.Clock) Option           { return func(a *App) { a.clock = c } }

// NewApp opens the application over store and resumes from the stored head.
func NewApp(store *storage.PebbleStore, cfg Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg.MaxTxBytes <= 0 {
		cfg.MaxTxBytes = 1 << 20
	}
	a := &App{
		cfg:      cfg,
		store:    store,
		verifier: transaction.NewVerifier(crypto.DomainForChain(cfg.ChainID)),
		mempool:  mempool.NewMempool(cfg.MempoolSize),
		logger:   logger,
		wal:      storage.NewNopWAL(),
		clock:    util.RealClock{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.events == nil {
		a.events = eventlog.NewFanout(logger)
	}
	if a.registry == nil {
		a.registry = registry.NewLogNotifier(logger)
	}

	var head Block
	err := store.View(func(tx *storage.Txn) error {
		_, err := tx.GetJSON(storage.HeadKey(), &head)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load head: %w", err)
	}
	a.height, a.appHash = head.Height, head.AppHash
	if head.Height > 0 {
		logger.Info("resumed from stored head", zap.Uint64("height", head.Height), zap.String("appHash", head.AppHash.Hex()))
	}
	return a, nil
}

// Events exposes the fan-out so late sinks (websocket hub, gossip) can attach.
func (a *App) Events() *eventlog.Fanout { return a.events }

func (a *App) Verifier() *transaction.Verifier { return a.verifier }

func (a *App) LastHeight() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.height
}

func (a *App) PendingTxs() int { return a.mempool.Len() }

// Submit checks a raw transaction and queues it for the next block.
func (a *App) Submit(raw []byte) (common.Hash, error) {
	tx, hash, err := a.precheck(raw)
	if err != nil {
		return common.Hash{}, err
	}
	if err := a.mempool.PushRaw(raw); err != nil {
		return common.Hash{}, err
	}
	a.logger.Debug("tx queued", zap.String("type", string(tx.Type)), zap.String("hash", hash.Hex()))
	return hash, nil
}

// precheck runs the checks that reject a transaction without a receipt.
func (a *App) precheck(raw []byte) (*transaction.SignedTransaction, common.Hash, error) {
	tx, err := transaction.ParseTransaction(raw)
	if err != nil {
		return nil, common.Hash{}, err
	}
	hash, err := a.verifier.Verify(tx)
	if err != nil {
		return nil, common.Hash{}, err
	}
	if tx.Action.Nonce == ^uint64(0) {
		return nil, common.Hash{}, ErrNonceExhausted
	}
	next, err := a.Nonce(tx.Action.From)
	if err != nil {
		return nil, common.Hash{}, err
	}
	if tx.Action.Nonce < next {
		return nil, common.Hash{}, fmt.Errorf("%w: got %d, next is %d", transaction.ErrNonceTooLow, tx.Action.Nonce, next)
	}
	return tx, hash, nil
}

func (a *App) PrepareProposal(req abci.RequestPrepareProposal) abci.ResponsePrepareProposal {
	maxBytes := req.MaxTxBytes
	if maxBytes <= 0 {
		maxBytes = a.cfg.MaxTxBytes
	}
	return abci.ResponsePrepareProposal{Txs: a.mempool.SelectForBlock(maxBytes)}
}

// ProcessProposal accepts a proposal whose transactions all parse. Signature
// and nonce checks happen per transaction at execution.
func (a *App) ProcessProposal(req abci.RequestProcessProposal) abci.ResponseProcessProposal {
	for _, raw := range req.Txs {
		if _, err := transaction.ParseTransaction(raw); err != nil {
			return abci.ResponseProcessProposal{Accept: false}
		}
	}
	return abci.ResponseProcessProposal{Accept: true}
}

// FinalizeBlock executes req.Txs as the next block. The height is assigned
// under the application lock, so req.Height is only the producer's guess.
func (a *App) FinalizeBlock(req abci.RequestFinalizeBlock) (abci.ResponseFinalizeBlock, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.finalizeLocked(context.Background(), req.Timestamp, req.Txs)
	if err != nil {
		return abci.ResponseFinalizeBlock{}, err
	}
	return res.response, nil
}

// Apply executes one transaction synchronously as its own block. Rejected
// transactions return an error and no receipt; failed ones return a receipt
// with Status "failed".
func (a *App) Apply(ctx context.Context, raw []byte) (Receipt, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := a.finalizeLocked(ctx, a.clock.Now(), [][]byte{raw})
	if err != nil {
		return Receipt{}, err
	}
	if len(res.rejected) > 0 {
		return Receipt{}, res.rejected[0]
	}
	return res.receipts[0], nil
}

// Run produces blocks from the mempool every MinBlockTime until ctx ends.
func (a *App) Run(ctx context.Context) error {
	p := &abci.Producer{
		App:        a,
		Clock:      a.clock,
		Interval:   a.cfg.MinBlockTime,
		MaxTxBytes: a.cfg.MaxTxBytes,
		Logger:     a.logger,
	}
	err := p.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type blockResult struct {
	response abci.ResponseFinalizeBlock
	receipts []Receipt
	rejected []error
}

func (a *App) finalizeLocked(ctx context.Context, ts time.Time, txs [][]byte) (blockResult, error) {
	height := a.height + 1
	var (
		res      blockResult
		outcomes []outcome
	)
	for _, raw := range txs {
		out, err := a.execute(raw, height, ts)
		if err != nil {
			a.logger.Info("tx rejected", zap.Uint64("height", height), zap.Error(err))
			res.rejected = append(res.rejected, err)
			continue
		}
		outcomes = append(outcomes, out)
		res.receipts = append(res.receipts, out.receipt)
	}
	res.response = abci.ResponseFinalizeBlock{
		Height:   a.height,
		Accepted: len(res.receipts),
		Rejected: len(res.rejected),
		AppHash:  a.appHash,
	}
	if len(res.receipts) == 0 {
		return res, nil
	}

	blk, err := newBlock(height, ts, res.receipts)
	if err != nil {
		return res, err
	}
	err = a.store.Update(func(tx *storage.Txn) error {
		if err := tx.SetJSON(storage.BlockKey(height), blk); err != nil {
			return err
		}
		return tx.SetJSON(storage.HeadKey(), blk)
	})
	if err != nil {
		return res, fmt.Errorf("store block %d: %w", height, err)
	}
	a.height, a.appHash = height, blk.AppHash
	res.response.Height, res.response.AppHash = height, blk.AppHash

	failed := 0
	for _, r := range res.receipts {
		if r.Status == StatusFailed {
			failed++
		}
	}
	a.logger.Info("block finalized",
		zap.Uint64("height", height),
		zap.Int("txs", len(res.receipts)),
		zap.Int("failed", failed),
		zap.String("appHash", blk.AppHash.Hex()),
	)

	for _, out := range outcomes {
		a.publish(ctx, out)
	}
	return res, nil
}

// publish hands committed effects to the outside world. Nothing here can
// undo the commit.
func (a *App) publish(ctx context.Context, out outcome) {
	if len(out.entries) > 0 {
		a.events.Publish(ctx, out.entries)
	}
	for _, n := range out.notices {
		switch n.kind {
		case registry.NoticeListed:
			a.registry.Notify(n.order, n.asset, n.creator)
		case registry.NoticeUpdated:
			a.registry.Updated(n.order, n.asset, out.receipt.TxHash)
		}
	}
	a.wal.Append(out.receipt.walLine())
}
