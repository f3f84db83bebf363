package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/giygas/ppu-savings/cache"
	"github.com/giygas/ppu-savings/config"
	"github.com/giygas/ppu-savings/data"
	"github.com/giygas/ppu-savings/discount"
	"github.com/giygas/ppu-savings/handlers"
	"github.com/giygas/ppu-savings/health"
	"github.com/giygas/ppu-savings/interfaces"
	"github.com/giygas/ppu-savings/logging"
	"github.com/giygas/ppu-savings/orgs"
	"github.com/giygas/ppu-savings/savings"
	"github.com/giygas/ppu-savings/scheduler"
	"github.com/giygas/ppu-savings/server"
	"github.com/giygas/ppu-savings/store/postgres"
	"github.com/giygas/ppu-savings/store/redis"
	"github.com/giygas/ppu-savings/substitution"
	"github.com/giygas/ppu-savings/validation"
	"github.com/joho/godotenv"
)

const usage = `usage:
  ppu-savings                        run the API server
  ppu-savings import-practices FILE  load an epraccur CSV into the practice table`

func main() {
	if err := loadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	logging.InitLogger(logging.Options{
		Dir:            cfg.LogDir,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	defer logging.Close()

	args := os.Args[1:]
	switch {
	case len(args) == 0:
		err = serve(cfg)
	case args[0] == "import-practices" && len(args) == 2:
		err = importPractices(cfg, args[1])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logging.Error("Exiting", "error", err)
		logging.Close()
		os.Exit(1)
	}
}

// loadEnv reads .env from the working directory, falling back to the
// executable's directory
func loadEnv() error {
	if err := godotenv.Load(); err == nil {
		return nil
	}

	ex, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	exPath := filepath.Dir(ex)
	if err := os.Chdir(exPath); err != nil {
		return fmt.Errorf("failed to change directory: %w", err)
	}

	// Configuration may come from the environment alone
	_ = godotenv.Load()
	return nil
}

func serve(cfg *config.Config) error {
	ctx := context.Background()

	db, err := postgres.Connect(ctx, postgres.Config{
		URL:          cfg.DatabaseURL,
		SwapsSQLPath: cfg.SwapsSQLPath,
		MaxConns:     cfg.DBMaxConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	dependencies := []health.Dependency{{Name: "postgres", Pinger: db, Required: true}}

	var memoBackend interfaces.MemoBackend
	if cfg.RedisAddr != "" {
		rdb, err := redis.Connect(ctx, redis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.MemoPrefix,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		memoBackend = rdb
		dependencies = append(dependencies, health.Dependency{Name: "redis", Pinger: rdb})
	} else {
		logging.Info("REDIS_ADDR not set, memoizing in process memory")
		memoBackend = cache.NewMemoryBackend()
	}

	dataContainer := data.NewDataContainer()
	dataContainer.SetServerStartTime(time.Now())

	sets := substitution.NewProvider(db, db, func() map[string]struct{} {
		return dataContainer.MatrixStore().PrescribedCodes()
	})

	discounts := discount.NewResolver(db, discount.Percentages{
		Generic:   cfg.GenericDiscount,
		Appliance: cfg.ApplianceDiscount,
		Brand:     cfg.BrandDiscount,
	})

	engine, err := savings.NewEngine(savings.Config{
		TargetCentile: cfg.TargetCentile,
		PeerGroup:     orgs.OrgType(cfg.PeerGroup),
		MinSavings:    cfg.MinSavings(),
	}, dataContainer, sets, discounts, cache.NewMemo(memoBackend, cfg.MemoTTL))
	if err != nil {
		return fmt.Errorf("invalid savings configuration: %w", err)
	}

	refreshTimes, err := config.ParseRefreshTimes(cfg.RefreshTimes)
	if err != nil {
		return err
	}

	validator := validation.NewDataValidator()

	sched := scheduler.NewScheduler(dataContainer, db, sets, validator, cfg.RefreshTimes)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	healthChecker := health.NewHealthChecker(dataContainer, refreshTimes, dependencies...)
	httpHandler := handlers.NewHTTPHandler(engine, sets, dataContainer, validator, healthChecker)
	srv := server.NewServer(cfg, httpHandler)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed to start: %w", err)
	case <-quit:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// importPractices loads the practice register from an NHS epraccur extract.
// CCGs must already be present.
func importPractices(cfg *config.Config, path string) error {
	ctx := context.Background()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	db, err := postgres.Connect(ctx, postgres.Config{
		URL:          cfg.DatabaseURL,
		SwapsSQLPath: cfg.SwapsSQLPath,
		MaxConns:     cfg.DBMaxConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	knownCCGs, err := db.KnownCCGs(ctx)
	if err != nil {
		return err
	}

	practices, err := orgs.ParseEpraccur(f, knownCCGs)
	if err != nil {
		return err
	}

	count, err := db.UpsertPractices(ctx, practices)
	if err != nil {
		return err
	}

	logging.Info("Imported practices", "file", path, "count", count)
	return nil
}
