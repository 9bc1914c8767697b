package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	appoauth "github.com/goodhang/authcore/internal/application/oauth"
	appservice "github.com/goodhang/authcore/internal/application/service"
	"github.com/goodhang/authcore/internal/config"
	"github.com/goodhang/authcore/internal/domain/repository"
	"github.com/goodhang/authcore/internal/domain/service"
	"github.com/goodhang/authcore/internal/infrastructure/activation"
	"github.com/goodhang/authcore/internal/infrastructure/hostbridge"
	"github.com/goodhang/authcore/internal/infrastructure/identity"
	"github.com/goodhang/authcore/internal/infrastructure/monitoring"
	"github.com/goodhang/authcore/internal/infrastructure/secrets"
	"github.com/goodhang/authcore/internal/infrastructure/statestore"
	"github.com/goodhang/authcore/internal/infrastructure/store"
	httpiface "github.com/goodhang/authcore/internal/interfaces/http"
	"github.com/goodhang/authcore/internal/interfaces/http/handlers"
	"github.com/goodhang/authcore/pkg/constants"
	"github.com/goodhang/authcore/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	appLogger, err := logger.New(constants.ParseLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	// Root context. Cancelled on SIGINT/SIGTERM so in-flight restores stop
	// writing to storage during teardown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	secretStore, err := newSecretStore(cfg, appLogger)
	if err != nil {
		appLogger.Error(ctx, "secret store init failed", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	regStore := store.NewRegistrationStore(secretStore, appLogger)
	credStore := store.NewCredentialStore(secretStore, appLogger)

	identityClient := identity.NewClient(cfg.Identity, appLogger)
	activationClient := activation.NewClient(cfg.Activation, appLogger)

	var bridge service.HostBridge = hostbridge.Disabled{}
	if cfg.HostBridge.Enabled {
		bridge = hostbridge.NewClient(cfg.HostBridge, appLogger)
	}

	stateStore, err := newStateStore(ctx, cfg)
	if err != nil {
		appLogger.Error(ctx, "state store init failed", err)
		os.Exit(1)
	}

	sessions := appservice.NewSessionManager(ctx, regStore, identityClient, activationClient, bridge, metrics, appLogger)
	activationSvc := appservice.NewActivationAppService(regStore, activationClient, sessions, metrics, appLogger)
	broker := appoauth.NewBroker(cfg.OAuth, stateStore, credStore, metrics, appLogger)

	sessionHandler := handlers.NewSessionHandler(sessions, identityClient)
	activationHandler := handlers.NewActivationHandler(activationSvc, sessionHandler)
	oauthHandler := handlers.NewOAuthHandler(broker, sessionHandler)

	router := httpiface.NewRouter(cfg.Server, sessionHandler, activationHandler, oauthHandler, registry)

	// Kick off the initial restore so the dashboard's first poll sees a
	// settled state instead of Unauthenticated.
	go func() {
		if _, err := sessions.CheckSession(ctx); err != nil && ctx.Err() == nil {
			appLogger.Warn(ctx, "initial session restore failed", logger.Any("error", err))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		appLogger.Info(ctx, "listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error(ctx, "server failed", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Warn(context.Background(), "shutdown incomplete", logger.Any("error", err))
	}
}

func newSecretStore(cfg *config.Config, log logger.Logger) (secrets.Store, error) {
	switch cfg.Secrets.Backend {
	case "vault":
		return secrets.NewVaultStore(cfg.Vault, log)
	default:
		encoded := os.Getenv(cfg.Secrets.MasterKeyEnv)
		if encoded == "" {
			return nil, fmt.Errorf("master key env %s is not set", cfg.Secrets.MasterKeyEnv)
		}
		masterKey, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("master key env %s is not valid base64: %w", cfg.Secrets.MasterKeyEnv, err)
		}
		return secrets.NewFileStore(cfg.Secrets.Dir, masterKey, log)
	}
}

func newStateStore(ctx context.Context, cfg *config.Config) (repository.StateStore, error) {
	if cfg.OAuth.StateStore != "redis" {
		return statestore.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return statestore.NewRedisStore(client), nil
}
