// Command gatewave-monitor is a headless feed watcher: it authenticates,
// opens the realtime channel and prints every barrier event until
// interrupted.
//
// Usage:
//
//	gatewave-monitor [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-env string           .env file with GATEWAVE_USERNAME / GATEWAVE_PASSWORD (default ".env")
//	-session string       Session file for the refresh token and endpoint cache
//	-receiver string      Receiver ID to subscribe (default: every listed barrier)
//	-protocol-log string  Write a CBOR protocol log to this file (see gatewave-log)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-list                 List barriers and exit
//
// Examples:
//
//	# Watch all barriers of the account in .env
//	gatewave-monitor
//
//	# Keep the session between runs, capture the protocol exchange
//	gatewave-monitor -session ~/.gatewave/session.json -protocol-log feed.gwlog
//
//	# Just print the inventory
//	gatewave-monitor -list
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

	"github.com/joho/godotenv"

	"github.com/gatewave/gatewave-go/pkg/barrier"
	"github.com/gatewave/gatewave-go/pkg/client"
	"github.com/gatewave/gatewave-go/pkg/dispatch"
	"github.com/gatewave/gatewave-go/pkg/log"
	"github.com/gatewave/gatewave-go/pkg/persistence"
)

func main() {
	var (
		configFile  = flag.String("config", "", "YAML configuration file")
		envFile     = flag.String("env", ".env", ".env file with credentials")
		sessionFile = flag.String("session", "", "session file for the refresh token")
		receiver    = flag.String("receiver", "", "receiver ID to subscribe")
		protocolLog = flag.String("protocol-log", "", "write a CBOR protocol log to this file")
		logLevel    = flag.String("log-level", "info", "log level: debug, info, warn, error")
		listOnly    = flag.Bool("list", false, "list barriers and exit")
	)
	flag.Parse()

	if err := run(*configFile, *envFile, *sessionFile, *receiver, *protocolLog, *logLevel, *listOnly); err != nil {
		fmt.Fprintf(os.Stderr, "gatewave-monitor: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, envFile, sessionFile, receiver, protocolLog, logLevel string, listOnly bool) error {
	fileCfg, err := loadConfigFile(configFile)
	if err != nil {
		return err
	}

	// Credentials come from the environment; a missing .env file just
	// means they were exported some other way.
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	slogger := newSlogger(logLevel)
	protoLogger, closeLog, err := buildProtocolLogger(slogger, protocolLog)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg, err := fileCfg.clientConfig()
	if err != nil {
		return err
	}
	cfg.Logger = protoLogger

	c, err := client.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store *persistence.TokenStore
	if sessionFile != "" {
		store = persistence.NewTokenStore(sessionFile)
	}
	username, err := authenticate(ctx, c, store, slogger)
	if err != nil {
		return err
	}

	barriers, err := c.GetAllBarriers(ctx)
	if err != nil {
		return fmt.Errorf("list barriers: %w", err)
	}
	printBarriers(barriers)
	if listOnly {
		return saveSession(store, c, username)
	}

	c.AddListener(func(event dispatch.Event) {
		logEvent(slogger, event)
	}, dispatch.Filter{})

	receivers := []string{receiver}
	if receiver == "" {
		receivers = receivers[:0]
		for _, b := range barriers {
			receivers = append(receivers, b.ID)
		}
	}
	for _, r := range receivers {
		if err := c.Subscribe(ctx, r); err != nil {
			return fmt.Errorf("subscribe %s: %w", r, err)
		}
	}

	terminal := make(chan error, 1)
	c.OnTerminalError(func(err error) { terminal <- err })

	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	slogger.Info("connected, watching feeds", "receivers", len(receivers))

	if err := saveSession(store, c, username); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		slogger.Info("shutting down")
		return nil
	case err := <-terminal:
		return fmt.Errorf("connection abandoned: %w", err)
	}
}

// authenticate prefers a stored refresh token and falls back to the
// credentials in the environment.
func authenticate(ctx context.Context, c *client.Client, store *persistence.TokenStore, slogger *slog.Logger) (string, error) {
	username := os.Getenv("GATEWAVE_USERNAME")

	if store != nil {
		session, err := store.Load()
		if err != nil {
			return "", fmt.Errorf("load session: %w", err)
		}
		if session != nil && session.RefreshToken != "" {
			if err := c.AuthenticateRefresh(ctx, session.RefreshToken); err == nil {
				slogger.Debug("authenticated from stored session", "user", session.Username)
				return session.Username, nil
			}
			slogger.Warn("stored session rejected, falling back to password")
		}
	}

	password := os.Getenv("GATEWAVE_PASSWORD")
	if username == "" || password == "" {
		return "", fmt.Errorf("no usable session and GATEWAVE_USERNAME/GATEWAVE_PASSWORD not set")
	}
	if _, err := c.Authenticate(ctx, username, password); err != nil {
		return "", err
	}
	return username, nil
}

func saveSession(store *persistence.TokenStore, c *client.Client, username string) error {
	if store == nil {
		return nil
	}
	err := store.Save(&persistence.Session{
		SavedAt:      time.Now(),
		Username:     username,
		RefreshToken: c.RefreshToken(),
		Endpoints:    c.Endpoints(),
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func newSlogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// buildProtocolLogger wires the protocol event sink: always the slog
// adapter, plus the CBOR capture file when requested.
func buildProtocolLogger(slogger *slog.Logger, path string) (log.Logger, func(), error) {
	adapter := log.NewSlogAdapter(slogger)
	if path == "" {
		return adapter, func() {}, nil
	}
	fileLogger, err := log.NewFileLogger(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open protocol log: %w", err)
	}
	return log.NewMultiLogger(adapter, fileLogger), func() { fileLogger.Close() }, nil
}

func printBarriers(barriers []barrier.Barrier) {
	fmt.Printf("%-28s %-14s %-10s %-9s %-8s %s\n",
		"ID", "TYPE", "STATUS", "LIGHT", "VACATION", "NAME")
	for _, b := range barriers {
		light := "off"
		if b.State.LightOn() {
			light = "on"
		}
		vacation := "off"
		if b.State.VacationMode() {
			vacation = "on"
		}
		fmt.Printf("%-28s %-14s %-10s %-9s %-8s %s\n",
			b.ID, b.Type, b.State.Status(), light, vacation, b.State.DisplayName())
	}
}

func logEvent(slogger *slog.Logger, event dispatch.Event) {
	switch e := event.(type) {
	case dispatch.ConnectedEvent:
		slogger.Info("feed connected")
	case dispatch.ReconnectedEvent:
		slogger.Info("feed reconnected")
	case dispatch.ConnectionLostEvent:
		slogger.Warn("feed connection lost", "error", e.Err)
	case dispatch.BarrierStateEvent:
		slogger.Info("barrier state",
			"device", e.State.DeviceID,
			"status", e.State.Status().String(),
			"light", e.State.LightOn(),
			"vacation", e.State.VacationMode())
	case dispatch.ObstructedEvent:
		slogger.Warn("barrier obstructed", "device", e.DeviceID, "timestamp", e.Timestamp)
	}
}
