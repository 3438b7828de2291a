// Package main is the terminal client: it signs in against a dispoahora-go
// server and shows the availability card for that user.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MahdiBaghbani/dispoahora-go/internal/availability/remote"
	"github.com/MahdiBaghbani/dispoahora-go/internal/platform/logutil"
	"github.com/MahdiBaghbani/dispoahora-go/internal/tui"
)

// passwordEnv is read when --password is empty.
const passwordEnv = "DISPOAHORA_PASSWORD"

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "Base URL of the dispoahora-go server")
	username := flag.String("user", "", "Username to sign in as")
	password := flag.String("password", "", "Password (defaults to $"+passwordEnv+")")
	apiKey := flag.String("api-key", "", "API key sent as the apikey header (optional)")
	logFile := flag.String("log-file", "", "Write logs to this file (default: discard)")
	logLevel := flag.String("logging-level", "info", "Log level: trace, debug, info, warn, error")
	repairStale := flag.Bool("repair-stale", false, "Write Busy back when an expired Free record is loaded")
	tick := flag.Duration("tick", time.Second, "Countdown refresh interval")
	flag.Parse()

	if err := run(*serverURL, *username, *password, *apiKey, *logFile, *logLevel, *repairStale, *tick); err != nil {
		fmt.Fprintln(os.Stderr, "dispoahora-tui:", err)
		os.Exit(1)
	}
}

func run(serverURL, username, password, apiKey, logFile, logLevel string, repairStale bool, tick time.Duration) error {
	if username == "" {
		return fmt.Errorf("--user is required")
	}
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		return fmt.Errorf("--password or $%s is required", passwordEnv)
	}

	// The card owns the terminal, so logs never go to stdout.
	logger := logutil.Noop()
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logger = logutil.New(f, logLevel)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := remote.New(remote.Config{BaseURL: serverURL, APIKey: apiKey}, nil, logger)
	if err != nil {
		return err
	}

	res, err := client.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("sign in as %q: %w", username, err)
	}
	logger.Info("signed in", "user_id", res.User.ID, "expires_at", res.ExpiresAt)

	name := res.User.DisplayName
	if name == "" {
		name = res.User.Username
	}

	return tui.Run(tui.Options{
		Context:      ctx,
		Adapter:      client,
		UserID:       res.User.ID,
		DisplayName:  name,
		Clock:        time.Now,
		TickInterval: tick,
		RepairStale:  repairStale,
		Log:          logger,
	})
}
