package main

import (
	"context"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/exchangecity/exchanged/params"
	"github.com/exchangecity/exchanged/pkg/api"
	"github.com/exchangecity/exchanged/pkg/app/core"
	"github.com/exchangecity/exchanged/pkg/events"
	"github.com/exchangecity/exchanged/pkg/storage"
	"github.com/exchangecity/exchanged/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/exchanged.log"
	}

	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Durable audit log ----
	store, err := storage.NewPebbleEventStore(cfg.Storage.DBPath)
	if err != nil {
		sugar.Fatalw("event_store_open_failed", "path", cfg.Storage.DBPath, "err", err)
	}
	defer store.Close()

	var sink events.Store = store
	if cfg.Storage.AuditPath != "" {
		audit, err := storage.NewAuditFile(cfg.Storage.AuditPath)
		if err != nil {
			sugar.Fatalw("audit_file_open_failed", "path", cfg.Storage.AuditPath, "err", err)
		}
		defer audit.Close()
		sink = storage.TeeStore{store, audit}
	}

	log := events.NewLog(sink, util.RealClock{}, sugar)
	restored, err := store.Load()
	if err != nil {
		sugar.Fatalw("event_store_load_failed", "err", err)
	}
	log.Restore(restored)
	sugar.Infow("audit_log_restored", "records", log.Len())

	// ---- Exchange core ----
	ledger := core.NewLedger(cfg.Token.Deployer, log)
	vault := core.NewVault(ledger, cfg.Exchange.VaultAddress, log)
	book := core.NewBook(util.RealClock{}, log)
	engine := core.NewEngine(book, vault, cfg.Exchange.FeeAccount, cfg.Exchange.FeePercent, util.RealClock{}, log)

	sugar.Infow("exchange_initialized",
		"deployer", cfg.Token.Deployer.Hex(),
		"fee_account", cfg.Exchange.FeeAccount.Hex(),
		"fee_percent", cfg.Exchange.FeePercent,
		"orders", book.Count())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	server := api.NewServer(ledger, vault, book, engine, log, sugar)
	go func() {
		if err := server.Start(cfg.API.Addr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting_down")
}
