// Package app wires configuration, storage, codecs and background
// workers into a runnable token authority. Embedding applications
// supply their own identity directory through NewService.
package app

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/copperline/tokensmith/internal/tokens/bearer"
	"github.com/copperline/tokensmith/internal/tokens/codec"
	"github.com/copperline/tokensmith/internal/tokens/deny"
	"github.com/copperline/tokensmith/internal/tokens/domain"
	"github.com/copperline/tokensmith/internal/tokens/identity"
	"github.com/copperline/tokensmith/internal/tokens/manager"
	"github.com/copperline/tokensmith/internal/tokens/service"
	"github.com/copperline/tokensmith/internal/tokens/store/sqlite"
	"github.com/copperline/tokensmith/pkg/jwtx"
	"github.com/copperline/tokensmith/pkg/protect"
	"github.com/copperline/tokensmith/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application holds the wired token subsystem.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       *sqlite.Store
	mgr      *manager.Manager[*sqlite.Token]
	registry *codec.Registry

	redisClient *redis.Client
	denyPolicy  deny.Policy

	housekeeping *service.Housekeeping[*sqlite.Token]
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tokensmith",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initCodecs(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initDenyPolicy()

	app.mgr = manager.New[*sqlite.Token](app.db)
	app.housekeeping = service.NewHousekeeping(app.mgr, app.logger, cfg.HousekeepingInterval)

	return app, nil
}

// Manager exposes the lifecycle manager for administrative callers.
func (app *Application) Manager() *manager.Manager[*sqlite.Token] { return app.mgr }

// Registry exposes the codec registry.
func (app *Application) Registry() *codec.Registry { return app.registry }

// DenyPolicy exposes the configured deny list.
func (app *Application) DenyPolicy() deny.Policy { return app.denyPolicy }

// Logger exposes the process logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// NewService builds a token service over the application's manager and
// registry for the caller's identity directory.
func NewService[U any](app *Application, users identity.Directory[U]) *service.Service[*sqlite.Token, U] {
	return service.New[*sqlite.Token, U](app.mgr, app.registry, users, service.Options{
		AccessTTL:         app.cfg.AccessTTL,
		RefreshTTL:        app.cfg.RefreshTTL,
		StoreAccessTokens: app.cfg.StoreAccessTokens,
		RefreshPerMinute:  app.cfg.RefreshPerMinute,
	})
}

// NewValidator builds a bearer validator over a service from NewService,
// wired to the application's deny policy.
func NewValidator[U any](app *Application, svc *service.Service[*sqlite.Token, U]) *bearer.Validator[*sqlite.Token, U] {
	return bearer.New(svc, app.denyPolicy)
}

// Run starts the background workers and blocks until shutdown is
// requested.
func (app *Application) Run() error {
	app.housekeeping.Start()

	app.logger.Info("token service starting",
		"version", BuildVersion,
		"issuer", app.cfg.Issuer,
		"algorithm", app.cfg.Algorithm,
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown stops the workers and releases every resource.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down token service...")

	app.housekeeping.Stop()

	if app.redisClient != nil {
		if err := app.redisClient.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.mgr.Close(); err != nil {
		app.logger.Error("error closing token store", "error", err)
		return err
	}

	app.logger.Info("token service stopped")
	return nil
}

func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initCodecs registers the self-contained codec for access tokens and
// the reference codec for refresh tokens.
func (app *Application) initCodecs() error {
	signer, verifier, err := app.signingKeys()
	if err != nil {
		return err
	}

	var protector protect.Protector
	if app.cfg.ProtectKey != "" {
		key, err := base64.StdEncoding.DecodeString(app.cfg.ProtectKey)
		if err != nil {
			return fmt.Errorf("failed to decode protect key: %w", err)
		}
		protector, err = protect.New(key)
		if err != nil {
			return fmt.Errorf("failed to initialize payload protector: %w", err)
		}
		app.logger.Info("token payload encryption enabled")
	}

	selfContained, err := codec.NewSelfContained(codec.SelfContainedConfig{
		Signer:    signer,
		Verifier:  verifier,
		Issuer:    app.cfg.Issuer,
		Audiences: app.cfg.Audiences,
		Protector: protector,
	})
	if err != nil {
		return err
	}

	registry := codec.NewRegistry()
	registry.Register(domain.FormatJWT, selfContained)
	registry.Register(domain.FormatReference, codec.NewReference())
	registry.MapPurpose(domain.PurposeAccess, domain.FormatJWT)
	registry.MapPurpose(domain.PurposeRefresh, domain.FormatReference)
	app.registry = registry

	return nil
}

func (app *Application) signingKeys() (jwtx.Signer, jwtx.Verifier, error) {
	switch app.cfg.Algorithm {
	case "HS256":
		if app.cfg.SigningSecret == "" {
			return nil, nil, errors.New("HS256 requires TOKENS_SIGNING_SECRET")
		}
		hs, err := jwtx.NewHS256([]byte(app.cfg.SigningSecret))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize HS256 signer: %w", err)
		}
		return hs, hs, nil

	case "EdDSA":
		// Ephemeral keys: tokens do not survive a restart. Acceptable for
		// the default single-process deployment.
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		signer, err := jwtx.NewSignerEdDSA(priv)
		if err != nil {
			return nil, nil, err
		}
		verifier, err := jwtx.NewVerifierEdDSA(pub)
		if err != nil {
			return nil, nil, err
		}
		app.logger.Warn("using ephemeral EdDSA signing keys; tokens will not survive a restart")
		return signer, verifier, nil

	default:
		return nil, nil, fmt.Errorf("unsupported signing algorithm %q", app.cfg.Algorithm)
	}
}

// initDenyPolicy picks redis when an address is configured, otherwise
// an in-process list.
func (app *Application) initDenyPolicy() {
	if app.cfg.RedisAddr == "" {
		app.denyPolicy = deny.NewMemory()
		return
	}

	app.redisClient = redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
	app.denyPolicy = deny.NewRedis(app.redisClient)
	app.logger.Info("redis deny list enabled", "addr", app.cfg.RedisAddr)
}
