// hookboardd is the hook execution daemon.
// It runs the per-task hook engine and an HTTP API with WebSocket and SSE
// event streaming.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/hookboard/hookboard/internal/config"
	"github.com/hookboard/hookboard/internal/db"
	"github.com/hookboard/hookboard/internal/engine"
	"github.com/hookboard/hookboard/internal/events"
	"github.com/hookboard/hookboard/internal/server"
)

func main() {
	// Flags
	addr := flag.String("addr", ":4444", "HTTP API address")
	dbPath := flag.String("db", "", "Database path (default: ~/.local/share/hookboard/hookboard.db)")
	seed := flag.String("seed", "", "Board file to apply on startup (default: discover in current directory)")
	flag.Parse()

	// Setup logger
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "hookboardd",
	})

	if *dbPath == "" {
		*dbPath = db.DefaultPath()
	}

	// Open database
	database, err := db.Open(*dbPath)
	if err != nil {
		logger.Fatal("Failed to open database", "error", err)
	}
	defer database.Close()
	logger.Info("Database opened", "path", *dbPath)

	// Load config from database
	cfg := config.New(database)

	// Seed the board: an explicit file must apply, a discovered one may fail
	if *seed != "" {
		board, err := config.ApplyBoardFile(database, *seed)
		if err != nil {
			logger.Fatal("Failed to apply board file", "path", *seed, "error", err)
		}
		logger.Info("Applied board file", "path", *seed, "board", board.Name)
	} else if cwd, err := os.Getwd(); err == nil {
		if path := config.FindBoardFile(cwd); path != "" {
			board, err := config.ApplyBoardFile(database, path)
			if err != nil {
				logger.Error("Failed to apply board file", "path", path, "error", err)
			} else {
				logger.Info("Applied board file", "path", path, "board", board.Name)
			}
		}
	}

	logger.Info("Starting hookboardd",
		"addr", *addr,
		"db", *dbPath,
		"worktrees_dir", cfg.WorktreesDir,
	)

	// Event bus shared by the engine and both stream transports
	bus := events.NewBus()

	// Create engine (with logging enabled for daemon mode)
	eng := engine.NewWithLogging(database, bus, os.Stderr)
	workspaces := engine.NewGitWorkspaces(database, logger)
	workspaces.SetBaseDir(cfg.WorktreesDir)
	eng.SetWorkspaces(workspaces)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start engine: recovers interrupted executions, then watches for
	// external changes
	if err := eng.Start(ctx); err != nil {
		logger.Fatal("Failed to start engine", "error", err)
	}

	// Create HTTP API server
	srv := server.New(server.Config{
		Addr:   *addr,
		DB:     database,
		Engine: eng,
		Bus:    bus,
	})

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	logger.Info("HTTP API listening", "addr", *addr)
	fmt.Printf("\n  API:    http://localhost%s\n", *addr)
	fmt.Printf("  Events: http://localhost%s/events/stream\n", *addr)
	fmt.Printf("  Watch:  hookboard watch\n\n")

	// Wait for signal or server error
	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("Server error", "error", err)
		}
	case sig := <-sigCh:
		logger.Info("Received signal, shutting down", "signal", sig)
		// Stop the engine first so interrupted hooks are recorded as
		// cancelled before the process exits
		eng.Stop()
		cancel()
		<-errCh
	}
}
