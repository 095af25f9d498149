package main

import (
	"context"
	"fmt"
	gonet "net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jiecolao/pyquest-game/internal/config"
	"github.com/jiecolao/pyquest-game/internal/core/event"
	coresys "github.com/jiecolao/pyquest-game/internal/core/system"
	"github.com/jiecolao/pyquest-game/internal/data"
	"github.com/jiecolao/pyquest-game/internal/handler"
	"github.com/jiecolao/pyquest-game/internal/net"
	"github.com/jiecolao/pyquest-game/internal/net/packet"
	"github.com/jiecolao/pyquest-game/internal/persist"
	"github.com/jiecolao/pyquest-game/internal/scripting"
	"github.com/jiecolao/pyquest-game/internal/system"
	"github.com/jiecolao/pyquest-game/internal/watch"
	"github.com/jiecolao/pyquest-game/internal/web"
	"go.uber.org/zap"
)

func main() {
	// pyquest hash-password <password> prints a console.password_hash value.
	if len(os.Args) == 3 && os.Args[1] == "hash-password" {
		hash, err := handler.HashPassword(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	explicit := false
	if p := os.Getenv("PYQUEST_CONFIG"); p != "" {
		cfgPath = p
		explicit = true
	}
	cfg, err := config.Load(cfgPath, !explicit)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging, cfg.Server.Name)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Script.Dialect)

	// 3. Optional run journal in PostgreSQL
	printSection("Database")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		runWriter system.RunWriter
		runReader web.RunReader
	)
	if cfg.Database.DSN != "" {
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		version, err := persist.RunMigrations(ctx, db.Pool)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("journal schema at version %d", version))

		repo := persist.NewJournalRepo(db)
		runWriter, runReader = repo, repo
	} else {
		printSkip("run journal disabled (database.dsn is empty)")
	}
	fmt.Println()

	// 4. Load data
	printSection("Data")

	examples, err := data.LoadExampleTable(cfg.Server.ExamplesFile)
	if err != nil {
		return fmt.Errorf("load examples: %w", err)
	}
	printStat("Example scripts", examples.Count())
	fmt.Println()

	// 5. Tracker and script runtime
	tracker := watch.NewTracker(log.Named("watch"))
	runtime, err := scripting.NewRuntime(tracker, cfg.Script, log.Named("script"))
	if err != nil {
		return fmt.Errorf("script runtime: %w", err)
	}
	queue := scripting.NewQueue(cfg.Script.QueueSize)
	bus := event.NewBus()
	observers := handler.NewObservers()
	journal := system.NewJournalSystem(runWriter, cfg.Database.FlushInterval, log.Named("journal"))

	scripts := system.NewScriptSystem(queue, runtime, tracker, bus, journal, cfg.Script.MaxRunsPerTick, log.Named("script"))
	scripts.OnClear(observers.Forget)

	store := net.NewSessionStore()
	runner := coresys.NewRunner(cfg.Network.TickRate, log.Named("loop"))
	runner.Register(system.NewFeedSystem(bus, store))
	runner.Register(scripts)
	runner.Register(system.NewOutputSystem(store))
	runner.Register(journal)

	printSection("Listeners")

	// 6. Console protocol
	var netServer *net.Server
	if cfg.Network.BindAddress != "" {
		pktReg := packet.NewRegistry(log.Named("packet"))
		handler.RegisterAll(pktReg, &handler.Deps{
			Config:    cfg,
			Log:       log.Named("console"),
			Tracker:   tracker,
			Runtime:   runtime,
			Queue:     queue,
			Bus:       bus,
			Observers: observers,
			Examples:  examples,
			Journal:   journal,
		})

		netServer, err = net.NewServer(cfg.Network.BindAddress, net.SessionOptions{
			InSize:       cfg.Network.InQueueSize,
			OutSize:      cfg.Network.OutQueueSize,
			PktPerSec:    cfg.Network.PacketsPerSecond,
			WriteTimeout: cfg.Network.WriteTimeout,
			AuthRequired: cfg.Console.PasswordHash != "",
		}, log.Named("net"))
		if err != nil {
			return fmt.Errorf("net server: %w", err)
		}
		go netServer.AcceptLoop()
		runner.Register(system.NewInputSystem(netServer, pktReg, store, observers, tracker, cfg.Network.MaxPacketsPerTick, log.Named("input")))
		printReady(fmt.Sprintf("console on %s", netServer.Addr()))
	} else {
		printSkip("console protocol disabled")
	}

	// 7. Web API and websocket feed
	var webServer *web.Server
	webErr := make(chan error, 1)
	if cfg.Web.BindAddress != "" {
		ln, err := gonet.Listen("tcp", cfg.Web.BindAddress)
		if err != nil {
			return fmt.Errorf("web listener: %w", err)
		}
		deps := web.Deps{
			Config:   cfg.Web,
			Log:      log.Named("web"),
			Tracker:  tracker,
			Runtime:  runtime,
			Queue:    queue,
			Examples: examples,
			Journal:  journal,
		}
		if runReader != nil {
			deps.Runs = runReader
		}
		webServer = web.NewServer(deps)
		scripts.OnClear(webServer.Hub().Forget)
		event.Subscribe(bus, webServer.Hub().OnRunFinished)
		go func() { webErr <- webServer.Serve(ln) }()
		printReady(fmt.Sprintf("web api on http://%s", ln.Addr()))
	} else {
		printSkip("web api disabled")
	}

	// 8. Start game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	printReady(fmt.Sprintf("game loop started (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case err := <-webErr:
			if err != nil {
				return fmt.Errorf("web server: %w", err)
			}
		case sig := <-shutdownCh:
			log.Info("shutdown signal received", zap.String("signal", sig.String()))
			shutdown(webServer, netServer, journal, log)
			log.Info("server stopped")
			return nil
		}
	}
}

func shutdown(webServer *web.Server, netServer *net.Server, journal *system.JournalSystem, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if webServer != nil {
		if err := webServer.Shutdown(ctx); err != nil {
			log.Warn("web shutdown", zap.Error(err))
		}
	}
	if netServer != nil {
		netServer.Shutdown()
	}
	journal.Flush(ctx)
}
