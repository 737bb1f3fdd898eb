package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/logdiag-server/logdiag-server-pro/internal/api"
	"github.com/logdiag-server/logdiag-server-pro/internal/config"
	"github.com/logdiag-server/logdiag-server-pro/internal/decoder"
	"github.com/logdiag-server/logdiag-server-pro/internal/ingest"
	"github.com/logdiag-server/logdiag-server-pro/internal/models"
	"github.com/logdiag-server/logdiag-server-pro/internal/storage"
	"github.com/logdiag-server/logdiag-server-pro/pkg/crypto"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/diagnostics-server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to database
	store, err := storage.NewPostgresStore(cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate database schema")
	}

	log.Info().Msg("Connected to database")

	if err := bootstrapAdmin(context.Background(), store); err != nil {
		log.Fatal().Err(err).Msg("Failed to bootstrap admin account")
	}

	// Decoder for encrypted uploads
	dec, err := decoder.New(&cfg.Decoder)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid decoder configuration")
	}

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional NATS connection for distributing parse jobs
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("logdiag-diagnostics-server"),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
			nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
				log.Error().
					Err(err).
					Str("subject", sub.Subject).
					Msg("NATS error")
			}),
		)

		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, parsing in-process only")
			nc = nil
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")
		}
	} else {
		log.Info().Msg("NATS not configured, parsing in-process only")
	}

	// WaitGroup for services
	var wg sync.WaitGroup

	// Start ingest workers
	ingestSvc := ingest.NewService(&cfg.Ingest, store, dec, nc)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ingestSvc.Start(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Ingest service stopped")
		}
	}()

	// Start REST API server
	apiServer := api.NewRESTServer(cfg, store, ingestSvc)
	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("REST API server failed")
		}
	}()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	// Drain in-flight parse jobs, then stop the API
	cancel()

	if err := apiServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	wg.Wait()

	log.Info().Msg("Diagnostics server stopped")
}

// bootstrapAdmin seeds the first admin account on an empty users table.
// The password comes from ADMIN_PASSWORD, or is generated and printed
// once when unset.
func bootstrapAdmin(ctx context.Context, store storage.Store) error {
	count, err := store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@localhost"
	}

	password := os.Getenv("ADMIN_PASSWORD")
	generated := password == ""
	if generated {
		password, err = crypto.GenerateRandomString(16)
		if err != nil {
			return err
		}
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}

	user := &models.User{
		Email:        email,
		Username:     "admin",
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return err
	}

	event := log.Info().Str("email", email)
	if generated {
		event = event.Str("password", password)
	}
	event.Msg("Bootstrapped admin account")

	return nil
}
