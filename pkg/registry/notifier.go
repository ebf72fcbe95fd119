package registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/pkg/app/core/escrow"
)

// Notifier announces catalog changes. Both calls are fire-and-forget.
type Notifier interface {
	escrow.OrderRegistry
	Updated(order, asset common.Address, txHash common.Hash)
}

const (
	NoticeListed  = "listed"
	NoticeUpdated = "updated"
)

// Notice is the message a Notifier emits.
type Notice struct {
	Kind    string         `json:"kind"`
	Order   common.Address `json:"order"`
	Asset   common.Address `json:"asset"`
	Creator common.Address `json:"creator"`
	TxHash  common.Hash    `json:"txHash"`
}

// LogNotifier writes notices to the node log.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier { return &LogNotifier{logger: logger} }

func (n *LogNotifier) Notify(order, asset, creator common.Address) {
	n.logger.Info("order listed",
		zap.String("order", order.Hex()),
		zap.String("asset", asset.Hex()),
		zap.String("creator", creator.Hex()))
}

func (n *LogNotifier) Updated(order, asset common.Address, txHash common.Hash) {
	n.logger.Debug("order updated",
		zap.String("order", order.Hex()),
		zap.String("asset", asset.Hex()),
		zap.String("tx", txHash.Hex()))
}

// KafkaNotifier publishes notices keyed by asset, so a consumer can follow
// one market from a single partition.
type KafkaNotifier struct {
	writer messageWriter
	logger *zap.Logger
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaNotifier(brokers []string, topic string, logger *zap.Logger) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Warn("registry notice not delivered", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
	return &KafkaNotifier{writer: w, logger: logger}
}

func (k *KafkaNotifier) Notify(order, asset, creator common.Address) {
	k.send(Notice{Kind: NoticeListed, Order: order, Asset: asset, Creator: creator})
}

func (k *KafkaNotifier) Updated(order, asset common.Address, txHash common.Hash) {
	k.send(Notice{Kind: NoticeUpdated, Order: order, Asset: asset, TxHash: txHash})
}

func (k *KafkaNotifier) send(n Notice) {
	value, err := json.Marshal(n)
	if err != nil {
		k.logger.Warn("encode registry notice", zap.Error(err))
		return
	}
	// Async writer: returns once the message is queued.
	if err := k.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(n.Asset.Hex()),
		Value: value,
	}); err != nil {
		k.logger.Warn("queue registry notice", zap.String("order", n.Order.Hex()), zap.Error(err))
	}
}

func (k *KafkaNotifier) Close() error { return k.writer.Close() }

// Multi sends every notice to each notifier in turn.
type Multi []Notifier

func (m Multi) Notify(order, asset, creator common.Address) {
	for _, n := range m {
		n.Notify(order, asset, creator)
	}
}

func (m Multi) Updated(order, asset common.Address, txHash common.Hash) {
	for _, n := range m {
		n.Updated(order, asset, txHash)
	}
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*KafkaNotifier)(nil)
	_ Notifier = Multi(nil)
)
