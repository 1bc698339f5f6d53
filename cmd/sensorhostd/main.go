package main

//	@title			sensorhostd API
//	@version		0.1.0
//	@description	Device Lifecycle & Module Integration Kernel: host HTTP surface for device init, configuration, and sensor data.
//	@BasePath		/api/v1

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sensorhost/sensorhost/internal/apperr"
	"github.com/sensorhost/sensorhost/internal/config"
	"github.com/sensorhost/sensorhost/internal/httpapi"
	"github.com/sensorhost/sensorhost/internal/lifecycle"
	"github.com/sensorhost/sensorhost/internal/module"
	"github.com/sensorhost/sensorhost/internal/query"
	"github.com/sensorhost/sensorhost/internal/registry"
	"github.com/sensorhost/sensorhost/internal/store"
	"github.com/sensorhost/sensorhost/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Println(version.Info())
		return
	}

	configPath := flag.String("config", "", "path to configuration file")
	dbFlag := flag.String("db", "", "postgres connection string (overrides config)")
	hostFlag := flag.String("host", "", "listen host:port (overrides config)")
	dataDirFlag := flag.String("data-dir", "", "app data directory (overrides config)")
	devMode := flag.Bool("dev", false, "enable swagger UI")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		return
	}

	viperCfg, cfg, err := config.Load(config.Flags{
		ConfigPath: *configPath,
		DB:         *dbFlag,
		Host:       *hostFlag,
		DataDir:    *dataDirFlag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("sensorhostd starting", zap.String("version", version.Short()))

	st, err := store.Open(cfg.DB, logger.Named("store"))
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer st.Close()

	if err := st.Migrate(context.Background()); err != nil {
		logger.Fatal("migrate schema", zap.Error(err))
	}

	reg := registry.New(cfg.DataDir, logger.Named("registry"))
	maxID, err := maxDeviceID(context.Background(), st)
	if err != nil {
		logger.Fatal("seed device id counter", zap.Error(err))
	}
	reg.SeedLastID(maxID)

	hub := httpapi.NewHub(logger.Named("stream"))

	loader := func(path, dataDir string) (module.Driver, error) {
		return module.Load(path, dataDir)
	}
	controller := lifecycle.New(reg, st, logger.Named("lifecycle"), loader, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := controller.Reconstruct(ctx); err != nil {
		logger.Error("reconstruct devices", zap.Error(err))
	}

	ready := httpapi.ReadinessChecker(func(ctx context.Context) error {
		return st.DB().PingContext(ctx)
	})

	srv := httpapi.New(httpapi.Config{
		Addr:    cfg.Addr(),
		DevMode: *devMode,
		Ready:   ready,
	}, controller, hub, logger.Named("httpapi"))

	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	logger.Info("sensorhostd ready", zap.String("addr", cfg.Addr()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := controller.Shutdown(shutdownCtx); err != nil {
		logger.Error("device shutdown error", zap.Error(err))
	}

	logger.Info("sensorhostd stopped")
}

// maxDeviceID returns the highest persisted device ID, or 0 if the device
// table is empty, so registry.SeedLastID never reissues an ID across a
// restart.
func maxDeviceID(ctx context.Context, st *store.Store) (registry.DeviceID, error) {
	sqlStr, args, err := query.Select("device").Columns("id").OrderBy("id", "DESC").Limit(1).Build()
	if err != nil {
		return 0, err
	}

	var maxID uint32
	getErr := st.GetOne(ctx, sqlStr, args, func(row *sql.Row) error {
		return row.Scan(&maxID)
	})
	if apperr.Is(getErr, apperr.NotFound) {
		return 0, nil
	}
	if getErr != nil {
		return 0, getErr
	}
	return registry.DeviceID(maxID), nil
}
