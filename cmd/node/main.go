package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/escrowd/params"
	"github.com/uhyunpark/escrowd/pkg/api"
	"github.com/uhyunpark/escrowd/pkg/app/swap"
	"github.com/uhyunpark/escrowd/pkg/eventlog"
	"github.com/uhyunpark/escrowd/pkg/p2p"
	"github.com/uhyunpark/escrowd/pkg/registry"
	"github.com/uhyunpark/escrowd/pkg/storage"
	"github.com/uhyunpark/escrowd/pkg/util"
)

func main() {
	configFile := flag.String("config", "", "YAML config file (or CONFIG_FILE)")
	envFile := flag.String("env", "", ".env file (default: ./.env)")
	flag.Parse()

	cfg, err := params.Load(*configFile, *envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Log.File != "" {
		logger, err = util.NewLoggerWithFile(cfg.Log.File, cfg.Log.Level)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if err := run(cfg, logger); err != nil {
		sugar.Fatalw("node_failed", "err", err)
	}
	sugar.Info("node_stopped")
}

func run(cfg params.Config, logger *zap.Logger) error {
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	if err := os.MkdirAll(cfg.Node.DataDir, 0755); err != nil {
		return err
	}
	store, err := storage.NewPebbleStore(filepath.Join(cfg.Node.DataDir, "state"))
	if err != nil {
		return err
	}
	defer store.Close()

	wal, err := storage.NewFileWAL(filepath.Join(cfg.Node.DataDir, "transactions.log"))
	if err != nil {
		return err
	}
	defer wal.Close()

	// ---- Event sinks ----
	fanout := eventlog.NewFanout(logger)

	var journal *eventlog.Journal
	if cfg.Journal.Path != "" {
		if journal, err = eventlog.OpenJournal(cfg.Journal.Path); err != nil {
			return err
		}
		defer journal.Close()
		fanout.Add(journal)
		sugar.Infow("journal_enabled", "path", cfg.Journal.Path)
	}

	notifiers := registry.Multi{registry.NewLogNotifier(logger)}
	if len(cfg.Kafka.Brokers) > 0 {
		events := eventlog.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer events.Close()
		fanout.Add(events)

		catalog := registry.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.RegistryTopic, logger)
		defer catalog.Close()
		notifiers = append(notifiers, catalog)
		sugar.Infow("kafka_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic, "registry_topic", cfg.Kafka.RegistryTopic)
	}

	if cfg.P2P.Listen != "" {
		gossip, err := p2p.NewGossip(ctx, p2p.Config{
			ListenAddr: cfg.P2P.Listen,
			Bootstrap:  cfg.P2P.Bootstrap,
			Topic:      cfg.P2P.Topic,
			Logger:     sugar,
		})
		if err != nil {
			return err
		}
		defer gossip.Close()
		gossip.OnBatch(func(b p2p.EventBatch) {
			sugar.Debugw("peer_events", "origin", b.Origin, "entries", len(b.Entries))
		})
		fanout.Add(gossip)
	}

	hub := api.NewHub(logger)
	fanout.Add(hub)

	// ---- App ----
	appCfg, err := swap.ConfigFrom(cfg)
	if err != nil {
		return err
	}
	app, err := swap.NewApp(store, appCfg, logger,
		swap.WithFanout(fanout),
		swap.WithRegistry(notifiers),
		swap.WithWAL(wal),
	)
	if err != nil {
		return err
	}
	if appCfg.FaucetAdmin == (common.Address{}) {
		sugar.Warn("faucet_disabled")
	}

	sugar.Infow("node_starting",
		"chain_id", cfg.Chain.ID,
		"data_dir", cfg.Node.DataDir,
		"height", app.LastHeight(),
		"min_block_time_ms", cfg.Node.MinBlockTime.Milliseconds(),
	)

	server := api.NewServer(app, journal, hub, cfg.Chain.ID, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Run(ctx) })
	g.Go(func() error {
		err := server.Start(ctx, cfg.API.Addr)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	return g.Wait()
}
