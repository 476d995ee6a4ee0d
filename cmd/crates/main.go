package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fadedpez/crates/internal/config"
	"github.com/fadedpez/crates/internal/logging"
	"github.com/fadedpez/crates/pkg/catalog"
	"github.com/fadedpez/crates/pkg/events"
	accountRepo "github.com/fadedpez/crates/pkg/repositories/account"
	inventoryRepo "github.com/fadedpez/crates/pkg/repositories/inventory"
	tradeRepo "github.com/fadedpez/crates/pkg/repositories/trade"
	"github.com/fadedpez/crates/pkg/scheduler"
	"github.com/fadedpez/crates/pkg/services/badge"
	"github.com/fadedpez/crates/pkg/services/ledger"
	"github.com/fadedpez/crates/pkg/services/reward"
	"github.com/fadedpez/crates/pkg/services/trade"
)

// sweepInterval is how often expired pending trades are transitioned.
const sweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logging.LogError(logger, err)
		os.Exit(1)
	}

	badges, err := catalog.LoadBadges(cfg.BadgesPath)
	if err != nil {
		logging.LogError(logger, err)
		os.Exit(1)
	}
	logger.WithField("items", len(cat.Items())).WithField("badges", len(badges)).Info("catalogs loaded")

	accounts, err := accountRepo.NewSQLiteRepository(filepath.Join(cfg.DataDir, "accounts.db"))
	if err != nil {
		logger.WithError(err).Fatal("opening account repository")
	}
	defer accounts.Close()

	inventory, err := inventoryRepo.NewSQLiteRepository(filepath.Join(cfg.DataDir, "inventory.db"))
	if err != nil {
		logger.WithError(err).Fatal("opening inventory repository")
	}
	defer inventory.Close()

	trades, err := tradeRepo.NewSQLiteRepository(filepath.Join(cfg.DataDir, "trades.db"))
	if err != nil {
		logger.WithError(err).Fatal("opening trade repository")
	}
	defer trades.Close()

	sink := buildSinks(cfg, logger)

	ledgerService := ledger.NewService(ledger.Config{
		Accounts:        accounts,
		Inventory:       inventory,
		Catalog:         cat,
		Engine:          reward.NewEngine(reward.CryptoSource{}),
		Evaluator:       badge.NewEvaluator(badges),
		Sink:            sink,
		Logger:          logger,
		StartingBalance: cfg.StartingBalance,
	})

	tradeService := trade.NewService(trade.Config{
		Trades:  trades,
		Ledger:  ledgerService,
		Catalog: cat,
		Sink:    sink,
		Logger:  logger,
		Expiry:  cfg.TradeExpiry,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The expiry sweep is the only background work the composition root
	// owns; everything else is driven by the embedding API layer
	sched := scheduler.New(logger)
	sched.AddTask("trade-expiry-sweep", sweepInterval, func(ctx context.Context) error {
		expired, err := tradeService.SweepExpired(ctx)
		if err != nil {
			return err
		}
		if expired > 0 {
			logger.WithField("count", expired).Info("expired pending trades")
		}
		return nil
	})
	sched.Start(ctx)
	defer sched.Stop()

	logger.Info("economy core running, press Ctrl+C to exit")
	<-ctx.Done()
	logger.Info("shutting down")
}

// buildSinks assembles the configured notification sinks; the log sink is
// always on.
func buildSinks(cfg *config.Config, logger *logrus.Logger) events.Sink {
	sinks := events.Multi{events.NewLogSink(logger)}

	if cfg.ESAddress != "" {
		esSink, err := events.NewElasticSink(&events.ElasticConfig{URL: cfg.ESAddress})
		if err != nil {
			logger.WithError(err).Warn("elasticsearch sink disabled")
		} else {
			sinks = append(sinks, esSink)
		}
	}

	if cfg.DiscordToken != "" {
		discordSink, err := events.NewDiscordSink(cfg.DiscordToken, cfg.DiscordChannelID)
		if err != nil {
			logger.WithError(err).Warn("discord sink disabled")
		} else {
			sinks = append(sinks, discordSink)
		}
	}

	return sinks
}
