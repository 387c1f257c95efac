package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/0xArcturus/gmx-synthetics/config"
	"github.com/0xArcturus/gmx-synthetics/internal/api"
	"github.com/0xArcturus/gmx-synthetics/internal/archive"
	"github.com/0xArcturus/gmx-synthetics/internal/bank"
	"github.com/0xArcturus/gmx-synthetics/internal/callback"
	"github.com/0xArcturus/gmx-synthetics/internal/chain"
	"github.com/0xArcturus/gmx-synthetics/internal/channel"
	"github.com/0xArcturus/gmx-synthetics/internal/deposit"
	"github.com/0xArcturus/gmx-synthetics/internal/keeper"
	"github.com/0xArcturus/gmx-synthetics/internal/oracle"
	"github.com/0xArcturus/gmx-synthetics/internal/store"
	"github.com/0xArcturus/gmx-synthetics/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	network := config.ResolveNetwork(cfg.Chain.Network)
	log.WithFields(logger.Fields{
		"service": cfg.Synthetics.Name,
		"version": cfg.Synthetics.Version,
		"network": network,
	}).Info("starting synthetics deposit service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.DashboardName)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	registry, err := config.LoadTokens(cfg.Chain.TokensFile, network)
	if err != nil {
		log.WithError(err).Error("failed to load token table")
		os.Exit(1)
	}

	marketList, err := config.LoadMarkets(cfg.Chain.MarketsFile, network, registry)
	if err != nil {
		log.WithError(err).Error("failed to load market table")
		os.Exit(1)
	}
	markets := deposit.NewMarketSet(marketList)

	channels := channel.NewChannels(cfg.Channels.SettlementBuffer)
	defer channels.Close()

	tokenBank := bank.New()
	depositStore := store.NewDepositStore()
	callbacks := callback.NewRegistry()

	blocks := chain.NewSimulatedChain(cfg.Chain.BlockInterval)
	blocks.Start(ctx)
	defer blocks.Stop()

	handler := deposit.NewHandler(depositStore, markets, tokenBank, blocks)
	executor := deposit.NewExecutor(depositStore, markets, tokenBank, callbacks, channels)

	cache := oracle.NewPriceCache()
	builder := oracle.NewSnapshotBuilder(registry, cache, cfg.Oracle.MaxPriceAge)

	apiServer, err := api.NewServer(cfg.API, handler, executor, builder, depositStore, markets, cache, channels)
	if err != nil {
		log.WithError(err).Error("failed to create api server")
		os.Exit(1)
	}
	if apiServer != nil {
		go func() {
			if err := apiServer.Run(ctx); err != nil {
				log.WithError(err).Error("api server exited")
			}
		}()
	} else {
		log.WithComponent("main").Info("api disabled; deposits must be created programmatically")
	}

	var binanceFeed *oracle.BinanceFeed
	if cfg.Oracle.Binance.Enabled {
		binanceFeed = oracle.NewBinanceFeed(cfg.Oracle.Binance, cache)
		if err := binanceFeed.Start(ctx); err != nil {
			log.WithError(err).Warn("binance price feed failed to start")
			binanceFeed = nil
		}
	}

	var bybitFeed *oracle.BybitFeed
	if cfg.Oracle.Bybit.Enabled {
		bybitFeed = oracle.NewBybitFeed(cfg.Oracle.Bybit, cache)
		if err := bybitFeed.Start(ctx); err != nil {
			log.WithError(err).Warn("bybit price feed failed to start")
			bybitFeed = nil
		}
	}

	var kucoinFeed *oracle.KucoinFeed
	if cfg.Oracle.Kucoin.Enabled {
		kucoinFeed = oracle.NewKucoinFeed(cfg.Oracle.Kucoin, cache)
		if err := kucoinFeed.Start(ctx); err != nil {
			log.WithError(err).Warn("kucoin price feed failed to start")
			kucoinFeed = nil
		}
	}

	var archiveWriter *archive.Writer
	if cfg.Archive.Enabled {
		archiveWriter, err = archive.NewWriter(cfg.Archive, channels)
		if err != nil {
			log.WithError(err).Error("failed to create archive writer")
			os.Exit(1)
		}
		if err := archiveWriter.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start archive writer")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("settlement archive disabled; skipping writer")
	}

	var executionKeeper *keeper.Keeper
	if cfg.Keeper.Enabled {
		executionKeeper = keeper.New(cfg.Keeper, depositStore, markets, executor, builder)
		if err := executionKeeper.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start keeper")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("keeper disabled; deposits must be executed externally")
	}

	time.Sleep(2 * time.Second)
	log.WithFields(logger.Fields{
		"markets": len(marketList),
	}).Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if executionKeeper != nil {
		log.Info("stopping keeper")
		executionKeeper.Stop()
	}

	if binanceFeed != nil {
		log.Info("stopping binance price feed")
		binanceFeed.Stop()
	}
	if bybitFeed != nil {
		log.Info("stopping bybit price feed")
		bybitFeed.Stop()
	}
	if kucoinFeed != nil {
		log.Info("stopping kucoin price feed")
		kucoinFeed.Stop()
	}

	if archiveWriter != nil {
		log.Info("stopping archive writer")
		archiveWriter.Stop()
	}

	log.WithFields(logger.Fields{
		"pending": depositStore.Count(),
	}).Info("synthetics deposit service stopped")
}
