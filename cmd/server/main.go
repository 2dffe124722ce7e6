/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the ledger report server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load LEDGER_* configuration, then apply command-line flags
  2. Open the book store (JSON directory or SQLite)
  3. Load report definitions (built-ins plus LEDGER_REPORTS_FILE)
  4. Connect the Redis report cache when LEDGER_REDIS_ADDR is set
  5. Configure HTTP router and start the server
  6. Watch the JSON books for rewrites by the desktop software

COMMAND-LINE FLAGS:
  -addr      HTTP listen address (overrides LEDGER_ADDR)
  -backend   json or sqlite (overrides LEDGER_BACKEND)
  -data      JSON book directory (overrides LEDGER_DATA_DIR)
  -db        SQLite database path (overrides LEDGER_DB_PATH)
             Use ":memory:" for in-memory database
  -import    With the sqlite backend, import every book from -data first

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the watcher and close the store
  4. Exit

EXAMPLES:
  # Serve the desktop software's export directory
  ./server -data=/srv/books

  # Copy the books into SQLite and serve from there
  ./server -backend=sqlite -db=./data/ledger.db -import

SEE ALSO:
  - config/config.go: Environment configuration
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/warp/ledger-engine/api"
	"github.com/warp/ledger-engine/books"
	"github.com/warp/ledger-engine/config"
	"github.com/warp/ledger-engine/factory"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/logging"
	"github.com/warp/ledger-engine/store/jsonfile"
	"github.com/warp/ledger-engine/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Config.LoadFailed")
	}

	// Flags
	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	backend := flag.String("backend", cfg.Backend, "book store: json or sqlite")
	dataDir := flag.String("data", cfg.DataDir, "JSON book directory")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path")
	importBooks := flag.Bool("import", false, "import JSON books into SQLite before serving")
	flag.Parse()

	cfg.Addr, cfg.Backend, cfg.DataDir, cfg.DBPath = *addr, *backend, *dataDir, *dbPath
	if err := cfg.Validate(); err != nil {
		logrus.WithError(err).Fatal("Config.Invalid")
	}

	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	loc, _ := cfg.Location()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	var (
		src     ledger.Source
		files   *jsonfile.Store
		closeDB func() error
	)
	files, err = jsonfile.New(cfg.DataDir)
	if err != nil {
		log.WithError(err).Fatal("Store.JSONFailed")
	}
	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			log.WithError(err).Fatal("Store.SQLiteFailed")
		}
		closeDB = db.Close
		if *importBooks {
			importAll(ctx, log, db, files)
		}
		src = db
	default:
		src = files
	}

	// Report definitions
	defs := factory.Defaults()
	if cfg.ReportsFile != "" {
		if defs, err = factory.LoadDefinitions(cfg.ReportsFile); err != nil {
			log.WithError(err).Fatal("Reports.LoadFailed")
		}
	}

	svc := books.NewService(src, loc, defs...)
	handler := api.NewHandler(src, svc, defs, log)
	handler.Metrics = api.NewMetrics()

	// Report cache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("Cache.RedisUnreachable")
		}
		handler.Cache = api.NewReportCache(client, cfg.CacheTTL)
		handler.Cache.ListenForInvalidation(ctx)
	}

	// The desktop software rewrites JSON books in place
	var watcher *api.ChangeWatcher
	if cfg.Backend == config.BackendJSON && handler.Cache.Enabled() {
		watcher = api.NewChangeWatcher(files, handler.Cache, log)
		watcher.CheckInterval = cfg.WatchInterval
		watcher.Start()
	}

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:    cfg.CORSOrigins,
		RateLimit:      cfg.RateLimit,
		RequestTimeout: cfg.RequestTimeout,
		Production:     cfg.Production,
	})

	// Create server
	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     cfg.Addr,
			"backend":  cfg.Backend,
			"reports":  len(defs),
			"cache":    handler.Cache.Enabled(),
			"timezone": loc.String(),
		}).Info("Server.Starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server.Failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server.ShuttingDown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server.ForcedShutdown")
	}
	if watcher != nil {
		watcher.Stop()
	}
	if closeDB != nil {
		if err := closeDB(); err != nil {
			log.WithError(err).Error("Store.CloseFailed")
		}
	}

	log.Info("Server.Stopped")
}

// importAll copies every JSON book into SQLite, replacing what was there.
// A book that fails to import is logged and left as it was.
func importAll(ctx context.Context, log *logrus.Logger, db *sqlite.Store, files *jsonfile.Store) {
	names, err := files.Books(ctx)
	if err != nil {
		log.WithError(err).Fatal("Import.ListFailed")
	}
	for _, name := range names {
		n, err := db.ImportBook(ctx, files, name)
		if err != nil {
			logging.LogError(log, "main", "importAll", "import failed", name, err)
			continue
		}
		log.WithFields(logrus.Fields{"book": name, "records": n}).Info("Import.BookDone")
	}
}
