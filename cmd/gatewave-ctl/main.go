// Command gatewave-ctl is an interactive console for operating barriers.
//
// Usage:
//
//	gatewave-ctl [flags]
//
// Flags:
//
//	-env string        .env file with GATEWAVE_USERNAME / GATEWAVE_PASSWORD (default ".env")
//	-session string    Session file for the refresh token
//	-discovery string  Override the endpoints directory URL
//
// Interactive commands:
//
//	list                      - list barriers and their state
//	open <id>                 - open a barrier
//	close <id>                - close a barrier
//	light on|off <id>         - switch the courtesy light
//	vacation on|off <id>      - switch vacation mode
//	watch                     - toggle live event printing
//	status                    - show connection state
//	quit                      - exit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/gatewave/gatewave-go/pkg/client"
	"github.com/gatewave/gatewave-go/pkg/persistence"
)

func main() {
	var (
		envFile      = flag.String("env", ".env", ".env file with credentials")
		sessionFile  = flag.String("session", "", "session file for the refresh token")
		discoveryURL = flag.String("discovery", "", "endpoints directory URL")
	)
	flag.Parse()

	if err := run(*envFile, *sessionFile, *discoveryURL); err != nil {
		fmt.Fprintf(os.Stderr, "gatewave-ctl: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, sessionFile, discoveryURL string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	c, err := client.New(client.Config{DiscoveryURL: discoveryURL})
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := context.Background()

	var store *persistence.TokenStore
	if sessionFile != "" {
		store = persistence.NewTokenStore(sessionFile)
	}
	username, err := authenticate(ctx, c, store)
	if err != nil {
		return err
	}
	defer persistSession(store, c, username)

	console, err := newConsole(c)
	if err != nil {
		return err
	}
	defer console.Close()

	if err := console.start(ctx); err != nil {
		return err
	}
	console.run(ctx)
	return nil
}

func authenticate(ctx context.Context, c *client.Client, store *persistence.TokenStore) (string, error) {
	username := os.Getenv("GATEWAVE_USERNAME")

	if store != nil {
		session, err := store.Load()
		if err != nil {
			return "", fmt.Errorf("load session: %w", err)
		}
		if session != nil && session.RefreshToken != "" {
			if err := c.AuthenticateRefresh(ctx, session.RefreshToken); err == nil {
				return session.Username, nil
			}
			fmt.Fprintln(os.Stderr, "stored session rejected, falling back to password")
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

func persistSession(store *persistence.TokenStore, c *client.Client, username string) {
	if store == nil {
		return
	}
	err := store.Save(&persistence.Session{
		SavedAt:      time.Now(),
		Username:     username,
		RefreshToken: c.RefreshToken(),
		Endpoints:    c.Endpoints(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "save session: %v\n", err)
	}
}
