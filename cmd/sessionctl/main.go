package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"

	"github.com/classdesk/go-session-client/backend"
	"github.com/classdesk/go-session-client/identity/oidcgateway"
	"github.com/classdesk/go-session-client/internal/config"
	"github.com/classdesk/go-session-client/session"
	"github.com/classdesk/go-session-client/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running session client: %s\n", err)
	}
	log.Printf("Session client stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	ctx := context.Background()

	kv, err := openStorage(c, logger)
	if err != nil {
		return fmt.Errorf("openStorage: %w", err)
	}

	gateway, err := oidcgateway.New(ctx, oidcgateway.Config{
		IssuerURL:    c.GetIssuerURL(),
		ClientID:     c.GetClientID(),
		ClientSecret: c.GetClientSecret(),
		CallbackPort: c.GetCallbackPort(),
	}, kv, logger)
	if err != nil {
		return fmt.Errorf("oidcgateway.New: %w", err)
	}
	if err := gateway.Start(ctx); err != nil {
		return fmt.Errorf("gateway.Start: %w", err)
	}

	timeout, err := time.ParseDuration(c.GetAPITimeout())
	if err != nil {
		return fmt.Errorf("invalid API_TIMEOUT: %w", err)
	}
	client, err := backend.NewClient(backend.Config{BaseURL: c.GetAPIBaseURL(), Timeout: timeout}, logger)
	if err != nil {
		return fmt.Errorf("backend.NewClient: %w", err)
	}

	manager, err := session.NewManager(session.Deps{
		Gateway: gateway,
		Backend: client,
		Storage: kv,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("session.NewManager: %w", err)
	}
	defer manager.Close()

	unsubscribe := manager.Store().Subscribe(func(rec session.Record) {
		printRecord(rec)
		if notice, err := manager.Notices().TakeOnce(); err == nil && notice != nil {
			if notice.IsRegistration {
				fmt.Printf("Welcome to ClassDesk, %s!\n", notice.Name)
			} else {
				fmt.Printf("Welcome back, %s!\n", notice.Name)
			}
		}
	})
	defer unsubscribe()

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("manager.Start: %w", err)
	}

	printRecord(manager.Store().Snapshot())
	waitForStopSignal()
	return nil
}

func openStorage(c config.Config, logger zerolog.Logger) (storage.KV, error) {
	kv := storage.NewKeyring(c.GetKeyringService())
	if _, err := kv.Get("probe"); err == nil || errors.Is(err, storage.ErrNotFound) {
		return kv, nil
	}

	// No usable keychain on this host: fall back to the sealed file store.
	rawKey := config.GetEnv("STORE_KEY", "")
	if rawKey == "" {
		return nil, errors.New("no OS keychain available and CLASSDESK_STORE_KEY is not set")
	}
	key, err := hex.DecodeString(rawKey)
	if err != nil {
		return nil, fmt.Errorf("CLASSDESK_STORE_KEY must be hex: %w", err)
	}

	logger.Warn().Msg("OS keychain unavailable; using sealed file store")
	return storage.NewFile(filepath.Join(c.GetDataFolder(), "session-store.bin"), key)
}

func printRecord(rec session.Record) {
	switch {
	case rec.Loading:
		fmt.Println("session: loading")
	case rec.IdentityUser == nil:
		fmt.Println("session: signed out")
	case rec.AccessToken == "":
		fmt.Printf("session: %s (backend session pending)\n", rec.IdentityUser.Email)
	default:
		fmt.Printf("session: %s role=%s\n", rec.IdentityUser.Email, rec.Role)
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
