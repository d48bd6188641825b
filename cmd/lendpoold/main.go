package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lendpool/config"
	"lendpool/core/state"
	"lendpool/crypto"
	"lendpool/native/lendingpool"
	"lendpool/observability/logging"
	"lendpool/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LENDPOOL_ENV"))
	logger := logging.Setup("lendpoold", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	pool, err := buildPool(cfg, db, logger)
	if err != nil {
		logger.Error("Failed to build pool", slog.Any("error", err))
		os.Exit(1)
	}
	logReserveSnapshots(pool, cfg, logger)

	var metricsServer *http.Server
	if strings.TrimSpace(cfg.MetricsAddress) != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			logger.Info("Serving metrics", slog.String("address", cfg.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", slog.Any("error", err))
			}
		}()
	}

	logger.Info("Lending pool ready",
		slog.String("custody", cfg.CustodyAddress),
		slog.Int("reserves", len(cfg.Reserves)))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down")
	if metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("Metrics shutdown failed", slog.Any("error", err))
		}
	}
}

// logReserveSnapshots reports the stored accounting state of each configured
// reserve at startup.
func logReserveSnapshots(pool *lendingpool.Pool, cfg *config.Config, logger *slog.Logger) {
	for _, rc := range cfg.Reserves {
		asset, err := crypto.DecodeAddress(rc.Asset)
		if err != nil {
			continue
		}
		reserve, err := pool.GetReserveData(asset)
		if err != nil {
			logger.Warn("Reserve snapshot failed", slog.String("asset", rc.Asset), slog.Any("error", err))
			continue
		}
		logger.Info("Reserve state",
			slog.String("asset", rc.Asset),
			slog.String("liquidityIndex", reserve.LiquidityIndex.String()),
			slog.String("stableRate", reserve.CurrentStableBorrowRate.String()))
	}
}

// buildPool wires the persistence layer and the configured reserves into a
// ready lending pool.
func buildPool(cfg *config.Config, db storage.Database, logger *slog.Logger) (*lendingpool.Pool, error) {
	custody, err := crypto.DecodeAddress(cfg.CustodyAddress)
	if err != nil {
		return nil, err
	}

	pool := lendingpool.NewPool(custody)
	pool.SetState(state.NewLedger(db))
	pool.SetOracle(lendingpool.NewStaticOracle())
	pool.SetMaxStableLoanPercent(cfg.MaxStableLoanPercentBps)

	if strings.TrimSpace(cfg.TreasuryAddress) != "" {
		treasury, err := crypto.DecodeAddress(cfg.TreasuryAddress)
		if err != nil {
			return nil, err
		}
		pool.SetTreasury(treasury)
	}

	for _, reserve := range cfg.Reserves {
		asset, err := crypto.DecodeAddress(reserve.Asset)
		if err != nil {
			return nil, err
		}
		strategy := lendingpool.NewDefaultRateStrategy(
			reserve.BaseRate, reserve.Slope1, reserve.Slope2,
			reserve.OptimalUtilisation, reserve.StableOffset)
		underlying := state.NewTokenLedger(db, asset)
		err = pool.InitReserve(asset, underlying, strategy, lendingpool.ReserveConfiguration{
			Active:                  reserve.Active,
			Frozen:                  reserve.Frozen,
			BorrowingEnabled:        reserve.BorrowingEnabled,
			StableBorrowingEnabled:  reserve.StableBorrowingEnabled,
			LTVBps:                  reserve.LTVBps,
			LiquidationThresholdBps: reserve.LiquidationThresholdBps,
			LiquidationBonusBps:     reserve.LiquidationBonusBps,
			ReserveFactorBps:        reserve.ReserveFactorBps,
		})
		switch {
		case errors.Is(err, lendingpool.ErrReserveExists):
			logger.Info("Reserve already initialised", slog.String("asset", reserve.Asset))
		case err != nil:
			logger.Warn("Skipping reserve", slog.String("asset", reserve.Asset), slog.Any("error", err))
		default:
			logger.Info("Reserve initialised", slog.String("asset", reserve.Asset))
		}
	}
	return pool, nil
}
