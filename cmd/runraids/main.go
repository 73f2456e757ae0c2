package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/runraids/server/internal/api"
	"github.com/runraids/server/internal/config"
	"github.com/runraids/server/internal/data"
	"github.com/runraids/server/internal/persist"
	"github.com/runraids/server/internal/pull"
	"github.com/runraids/server/internal/raid"
	"github.com/runraids/server/internal/roster"
	"github.com/runraids/server/internal/scripting"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            RunRaids  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      raid combat + pull service           \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s\n\n", serverName)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("RUNRAIDS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	// 3. Connect to PostgreSQL and run migrations
	printSection("database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	printOK("PostgreSQL connected")

	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	printOK("migrations applied")
	fmt.Println()

	// 4. Load content tables
	printSection("data load")

	heroTable, err := data.LoadHeroTable(filepath.Join(cfg.Data.YamlDir, "hero_list.yaml"))
	if err != nil {
		return fmt.Errorf("load hero table: %w", err)
	}
	printStat("hero templates", heroTable.Count())

	enemyTable, err := data.LoadEnemyTable(filepath.Join(cfg.Data.YamlDir, "enemy_list.yaml"))
	if err != nil {
		return fmt.Errorf("load enemy table: %w", err)
	}
	printStat("enemy templates", enemyTable.Count())

	raidTable, err := data.LoadRaidTable(filepath.Join(cfg.Data.YamlDir, "raid_list.yaml"), enemyTable)
	if err != nil {
		return fmt.Errorf("load raid table: %w", err)
	}
	printStat("raid definitions", raidTable.Count())

	bannerTable, err := data.LoadBannerTable(filepath.Join(cfg.Data.YamlDir, "banner_list.yaml"), heroTable)
	if err != nil {
		return fmt.Errorf("load banner table: %w", err)
	}
	printStat("banners", bannerTable.Count())

	// 5. Initialize Lua formula engine
	engine, err := scripting.NewEngine(cfg.Data.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer engine.Close()
	printOK("Lua formulas loaded")
	fmt.Println()

	// 6. Create repositories and services
	rosterRepo := persist.NewRosterRepo(db)
	raidRepo := persist.NewRaidRepo(db)
	pullRepo := persist.NewPullRepo(db)

	rosterSvc := roster.NewService(rosterRepo, heroTable, engine, log)
	raidSvc := raid.NewService(raidRepo, rosterSvc, raidTable, enemyTable, engine, cfg.Raid, log)
	pullSvc := pull.NewService(pullRepo, bannerTable, heroTable, engine, cfg.Pull, log)

	// 7. HTTP server
	apiServer := api.NewServer(rosterSvc, raidSvc, pullSvc, log)
	httpServer := &http.Server{
		Addr:         cfg.Server.BindAddress,
		Handler:      apiServer.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	printSection("server ready")
	printReady(fmt.Sprintf("listening on %s", cfg.Server.BindAddress))
	fmt.Println()

	// 8. Wait for shutdown
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-shutdownCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := httpServer.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
