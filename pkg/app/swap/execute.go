package swap

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/pkg/app/core/escrow"
	"github.com/uhyunpark/escrowd/pkg/app/core/transaction"
	"github.com/uhyunpark/escrowd/pkg/eventlog"
	"github.com/uhyunpark/escrowd/pkg/ledger"
	"github.com/uhyunpark/escrowd/pkg/registry"
	"github.com/uhyunpark/escrowd/pkg/storage"
)

type notice struct {
	kind    string
	order   common.Address
	asset   common.Address
	creator common.Address
}

// outcome is what a committed transaction hands to publish.
type outcome struct {
	receipt Receipt
	entries []eventlog.Entry
	notices []notice
}

// execute runs one transaction. An error means the transaction was rejected
// and left no trace. Otherwise its receipt is committed, with status failed
// if the action itself failed.
func (a *App) execute(raw []byte, height uint64, ts time.Time) (outcome, error) {
	tx, hash, err := a.precheck(raw)
	if err != nil {
		return outcome{}, err
	}
	act := tx.Action

	rc := Receipt{
		TxHash: hash,
		Height: height,
		Type:   act.Kind,
		From:   act.From,
		Nonce:  act.Nonce,
		Status: StatusOK,
	}
	var out outcome
	err = a.store.Update(func(stx *storage.Txn) error {
		c := newCall(stx, height, hash)
		if err := a.dispatch(c, &act); err != nil {
			return err
		}
		out.entries = c.events.Entries(hash, height, ts)
		out.notices = c.notices
		events, err := receiptEvents(out.entries)
		if err != nil {
			return err
		}
		rc.Order, rc.Events = c.order, events
		return commitReceipt(stx, act, rc)
	})
	if err == nil {
		out.receipt = rc
		a.logger.Debug("tx applied",
			zap.String("type", string(act.Kind)),
			zap.String("hash", hash.Hex()),
			zap.String("order", rc.Order.Hex()),
		)
		return out, nil
	}

	// The action's batch was discarded. Record the failure and burn the nonce.
	rc.Status = StatusFailed
	rc.Error = err.Error()
	rc.ErrorKind = errorKind(err)
	rc.Order = act.Order
	rc.Events = []ReceiptEvent{}
	if werr := a.store.Update(func(stx *storage.Txn) error { return commitReceipt(stx, act, rc) }); werr != nil {
		return outcome{}, fmt.Errorf("store failed receipt %s: %w", hash.Hex(), werr)
	}
	a.logger.Info("tx failed",
		zap.String("type", string(act.Kind)),
		zap.String("hash", hash.Hex()),
		zap.String("caller", act.From.Hex()),
		zap.String("kind", rc.ErrorKind),
		zap.Error(err),
	)
	return outcome{receipt: rc}, nil
}

func commitReceipt(stx *storage.Txn, act transaction.Action, rc Receipt) error {
	if err := stx.SetUint64(storage.NonceKey(act.From), act.Nonce+1); err != nil {
		return err
	}
	return stx.SetJSON(storage.ReceiptKey(rc.TxHash), rc)
}

// call is the state one transaction works against. Every write goes to the
// transaction's batch.
type call struct {
	tx      *storage.Txn
	tokens  *ledger.Tokens
	bank    *ledger.Bank
	catalog *registry.Catalog
	events  *eventlog.Buffer
	height  uint64
	hash    common.Hash

	order   common.Address
	notices []notice
}

func newCall(tx *storage.Txn, height uint64, hash common.Hash) *call {
	return &call{
		tx:      tx,
		tokens:  ledger.NewTokens(tx),
		bank:    ledger.NewBank(tx),
		catalog: registry.NewCatalog(tx),
		events:  &eventlog.Buffer{},
		height:  height,
		hash:    hash,
	}
}

func (a *App) dispatch(c *call, act *transaction.Action) error {
	switch act.Kind {
	case transaction.KindCreate:
		return c.create(act)
	case transaction.KindFill:
		return c.fill(act)
	case transaction.KindClose:
		return c.close(act)
	case transaction.KindApprove:
		return c.tokens.Approve(act.Asset, act.From, act.To, act.Qty)
	case transaction.KindTransfer:
		if act.Asset == (common.Address{}) {
			return c.bank.Transfer(act.From, act.To, act.Value)
		}
		return c.tokens.Transfer(act.Asset, act.From, act.To, act.Qty)
	case transaction.KindFaucet:
		return a.faucet(c, act)
	default:
		return fmt.Errorf("%w: unknown transaction type: %s", transaction.ErrMalformed, act.Kind)
	}
}

func (a *App) faucet(c *call, act *transaction.Action) error {
	if a.cfg.FaucetAdmin == (common.Address{}) || act.From != a.cfg.FaucetAdmin {
		return fmt.Errorf("%w: %s", ErrNotFaucetAdmin, act.From.Hex())
	}
	if act.Value > 0 {
		if err := c.bank.Credit(act.To, act.Value); err != nil {
			return err
		}
	}
	if act.Qty > 0 && act.Asset != (common.Address{}) {
		return c.tokens.Mint(act.Asset, act.To, act.Qty)
	}
	return nil
}

// create opens an order at the address derived from the creator and nonce.
// Attached value becomes a Buy order's escrow; Sell orders hand it back.
func (c *call) create(act *transaction.Action) error {
	ref := gethcrypto.CreateAddress(act.From, act.Nonce)
	if _, ok, err := c.tx.Get(storage.OrderKey(ref)); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: %s", ErrOrderExists, ref.Hex())
	}

	if err := c.bank.Transfer(act.From, ref, act.Value); err != nil {
		return err
	}
	o, err := escrow.Create(ref, escrow.Params{
		Creator:   act.From,
		Asset:     act.Asset,
		Direction: escrow.Direction(act.Direction),
		Policy:    escrow.FillPolicy(act.Policy),
		UnitPrice: act.Price,
		Quantity:  act.Qty,
	}, act.Value, c.height)
	if err != nil {
		return err
	}
	if o.Direction() == escrow.Sell {
		if err := c.bank.Transfer(ref, act.From, act.Value); err != nil {
			return err
		}
	}

	c.order = ref
	c.notices = append(c.notices, notice{kind: registry.NoticeListed, order: ref, asset: o.Asset(), creator: o.Creator()})
	return c.save(o)
}

// fill settles against an order. A Sell order is paid with the attached
// value, which is parked in the order's escrow once the order has accepted
// the fill request.
func (c *call) fill(act *transaction.Action) error {
	o, err := c.load(act.Order)
	if err != nil {
		return err
	}
	vault := c.bank.Vault(o.Ref())
	if err := o.CheckFill(c.env(o, vault), act.From, act.Qty, act.Value); err != nil {
		return err
	}
	if o.Direction() == escrow.Sell {
		if err := c.bank.Transfer(act.From, o.Ref(), act.Value); err != nil {
			return err
		}
	}
	if _, err := o.Fill(c.env(o, vault), act.From, act.Qty, act.Value); err != nil {
		return err
	}
	if err := vault.Err(); err != nil {
		return err
	}
	c.order = o.Ref()
	c.notices = append(c.notices, notice{kind: registry.NoticeUpdated, order: o.Ref(), asset: o.Asset()})
	return c.save(o)
}

func (c *call) close(act *transaction.Action) error {
	o, err := c.load(act.Order)
	if err != nil {
		return err
	}
	vault := c.bank.Vault(o.Ref())
	ev, err := o.Close(c.env(o, vault), act.From)
	if err != nil {
		return err
	}
	if err := vault.Err(); err != nil {
		return err
	}
	c.order = o.Ref()
	if ev == nil {
		return nil
	}
	c.notices = append(c.notices, notice{kind: registry.NoticeUpdated, order: o.Ref(), asset: o.Asset()})
	return c.save(o)
}

func (c *call) env(o *escrow.Order, vault *ledger.Vault) escrow.Env {
	return escrow.Env{
		Ledger: c.tokens.For(o.Asset(), o.Ref()),
		Vault:  vault,
		Events: c.events,
		Block:  c.height,
	}
}

func (c *call) load(ref common.Address) (*escrow.Order, error) {
	var rec escrow.Record
	ok, err := c.tx.GetJSON(storage.OrderKey(ref), &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, ref.Hex())
	}
	return escrow.Restore(rec)
}

// save persists the order record and its catalog row.
func (c *call) save(o *escrow.Order) error {
	if err := c.tx.SetJSON(storage.OrderKey(o.Ref()), o.Record()); err != nil {
		return err
	}
	return c.catalog.Sync(o.Details(c.bank.Vault(o.Ref())), c.height, c.hash)
}
