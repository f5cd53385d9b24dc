package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/realmrelay/server/internal/config"
	"github.com/realmrelay/server/internal/game"
	"github.com/realmrelay/server/internal/persist"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
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
	fmt.Println("\033[36;1m  │\033[0m            RealmRelay  v0.1.0             \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      session & combat relay server        \033[36;1m│\033[0m")
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

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := flag.String("config", os.Getenv("REALMRELAY_CONFIG"), "path to server.toml (defaults are used when empty)")
	flag.Parse()

	var (
		cfg *config.Config
		err error
	)
	if *cfgPath == "" {
		cfg = config.Default()
	} else if cfg, err = config.Load(*cfgPath); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Optional session journal
	var opts game.Options
	var journal *persist.Journal
	journalCtx, stopJournal := context.WithCancel(context.Background())
	defer stopJournal()

	if cfg.Database.Enabled {
		printSection("database")
		db, err := openJournalDB(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer db.Close()
		printOK("PostgreSQL connected, migrations applied")

		journal = persist.NewJournal(persist.NewJournalRepo(db), cfg.Database.JournalQueueSize, log)
		go journal.Run(journalCtx)
		opts.Journal = journal
		fmt.Println()
	}

	// 4. Game server
	srv, err := game.New(cfg, log, opts)
	if err != nil {
		return fmt.Errorf("game server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.BindAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
		close(httpErr)
	}()

	printSection("ready")
	printReady(fmt.Sprintf("listening on %s (ws: /ws)", cfg.Server.BindAddress))
	printReady(fmt.Sprintf("game loop started (tick: %s)", cfg.Server.TickRate))
	if cfg.Admin.Enabled {
		printReady("admin API enabled at /admin/")
	}
	fmt.Println()

	// 5. Game loop until a signal or a listener failure
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	go func() {
		if err, ok := <-httpErr; ok && err != nil {
			log.Error("http listener failed", zap.Error(err))
			stopLoop()
		}
	}()

	if err := srv.Run(loopCtx); err != nil {
		return fmt.Errorf("game loop: %w", err)
	}
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}

	if journal != nil {
		stopJournal()
		<-journal.Done()
	}
	log.Info("server stopped")
	return nil
}

func openJournalDB(ctx context.Context, cfg *config.Config, log *zap.Logger) (*persist.DB, error) {
	dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(dbCtx, cfg.Database, cfg.Server.Name, log)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := persist.RunMigrations(dbCtx, db.Pool, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	if keep := cfg.Database.JournalRetention; keep > 0 {
		n, err := persist.NewJournalRepo(db).Prune(dbCtx, time.Now().Add(-keep))
		if err != nil {
			log.Warn("journal prune failed", zap.Error(err))
		} else if n > 0 {
			log.Info("journal pruned", zap.Int64("rows", n), zap.Duration("retention", keep))
		}
	}
	return db, nil
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

	log, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	if cfg.File == "" {
		return log, nil
	}

	// Rolling file copy, always JSON so it can be shipped as-is.
	lj := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(lj),
		zapCfg.Level,
	)
	return log.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}
