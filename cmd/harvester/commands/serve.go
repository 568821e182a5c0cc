package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/breg-harvester/am"
	"github.com/teranos/breg-harvester/errors"
	"github.com/teranos/breg-harvester/harvest"
	"github.com/teranos/breg-harvester/logger"
	"github.com/teranos/breg-harvester/pulse/async"
	"github.com/teranos/breg-harvester/pulse/schedule"
	"github.com/teranos/breg-harvester/resolver"
	"github.com/teranos/breg-harvester/server"
	"github.com/teranos/breg-harvester/sparql"
	"github.com/teranos/breg-harvester/termcache"
	"github.com/teranos/breg-harvester/version"
)

const storeWait = 30 * time.Second

// ServeCmd runs the API server with workers and the scheduler
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Run the harvester API, workers and scheduler",
	Long: `Start the HTTP API together with the harvest workers and the
periodic scheduler. The config file is watched and reloaded on change;
the listen port and worker count need a restart.`,
	RunE: runServe,
}

var (
	servePort      int
	serveNoWorkers bool
	serveNoWatch   bool
)

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
	ServeCmd.Flags().BoolVar(&serveNoWorkers, "no-workers", false, "Serve the API only; queued harvests wait for another process")
	ServeCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload the config file on change")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	port := cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}
	log := logger.Logger

	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	cache, err := termcache.FromConfig(cfg.TermCache, database, log)
	if err != nil {
		return errors.Wrap(err, "failed to open term cache")
	}
	defer cache.Close()
	res := resolver.FromConfig(cfg.Resolver, cache, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := sparql.FromConfig(cfg.SPARQL, log)
	if err != nil {
		return err
	}
	if err := store.Ping(ctx, storeWait); err != nil {
		pterm.Warning.Printf("Triple store not reachable yet: %v\n", err)
	}

	var pool *async.WorkerPool
	var queue *async.Queue
	var handler *harvest.Handler
	if !serveNoWorkers && cfg.Pulse.Workers > 0 {
		pool = async.NewWorkerPool(ctx, database, async.WorkerPoolConfigFrom(cfg), nil, log)
		queue = pool.GetQueue()
		handler = harvest.NewHandler(cfg, queue, newSourceFetcher(log), log)
		pool.Registry().Register(handler)
	} else {
		queue = async.NewQueue(database)
	}

	var ticker *schedule.Ticker
	if cfg.Scheduler.Enabled {
		tickCfg := schedule.DefaultTickerConfig()
		if cfg.Pulse.TickerIntervalSeconds > 0 {
			tickCfg.Interval = time.Duration(cfg.Pulse.TickerIntervalSeconds) * time.Second
		}
		ticker = schedule.NewTicker(ctx, schedule.NewStore(database), queue, tickCfg, log)
	}

	srv, err := server.New(server.Deps{
		Config:     cfg,
		DB:         database,
		Queue:      queue,
		Pool:       pool,
		Ticker:     ticker,
		NewBrowser: browserFactory(res, log),
		Logger:     log,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	if !serveNoWatch {
		if watcher := startWatcher(srv, handler); watcher != nil {
			defer watcher.Stop()
		}
	}

	printBanner(cfg, port, pool)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(fmt.Sprintf(":%d", port))
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server stopped")
	case <-sigChan:
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")
		shutdownCtx, stop := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer stop()

		done := make(chan error, 1)
		go func() { done <- srv.Stop(shutdownCtx) }()

		select {
		case err := <-done:
			if err != nil {
				return errors.Wrap(err, "shutdown error")
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("Force shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}

// startWatcher reloads the configuration into the running server and
// harvest handler when the config file changes.
func startWatcher(srv *server.HarvesterServer, handler *harvest.Handler) *am.ConfigWatcher {
	path := am.ConfigFileUsed()
	if path == "" {
		return nil
	}
	watcher, err := am.NewConfigWatcher(path)
	if err != nil {
		logger.Warnw("Config watcher unavailable", logger.FieldPath, path, logger.FieldError, err)
		return nil
	}
	watcher.OnReload(func(cfg *am.Config) error {
		srv.SetConfig(cfg)
		if handler != nil {
			handler.SetConfig(cfg)
		}
		return nil
	})
	am.SetGlobalWatcher(watcher)
	watcher.Start()
	return watcher
}

func printBanner(cfg *am.Config, port int, pool *async.WorkerPool) {
	pterm.DefaultSection.Println("breg-harvester " + version.Get().Short())
	workers := "disabled"
	if pool != nil {
		workers = fmt.Sprint(pool.Workers())
	}
	every := "disabled"
	if cfg.Scheduler.Enabled {
		every = (time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second).String()
	}
	pterm.DefaultTable.WithData(pterm.TableData{
		{"API", fmt.Sprintf("http://localhost:%d", port)},
		{"Graph", cfg.Harvest.GraphURI},
		{"SPARQL", cfg.SPARQL.Endpoint},
		{"Database", cfg.GetDatabasePath()},
		{"Workers", workers},
		{"Schedule", every},
	}).Render()
}
