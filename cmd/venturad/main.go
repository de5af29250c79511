// Package main runs the Ventura auth service: registration, email
// confirmation, profile finalization, and password recovery over HTTP.
// Storage defaults to in-memory; set VENTURA_STORE=file or postgres for
// persistence.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/ventura-app/ventura-auth/pkg/finalize"
	"github.com/ventura-app/ventura-auth/pkg/intentcache"
	"github.com/ventura-app/ventura-auth/pkg/notification"
	"github.com/ventura-app/ventura-auth/pkg/profiles"
	"github.com/ventura-app/ventura-auth/pkg/provider"
	"github.com/ventura-app/ventura-auth/pkg/ratelimit"
	"github.com/ventura-app/ventura-auth/pkg/sessionflags"
	"github.com/ventura-app/ventura-auth/pkg/sessionprobe"
	"github.com/ventura-app/ventura-auth/pkg/webflow"
)

type ServerConfig struct {
	Host string `env:"VENTURA_HOST" env-default:"0.0.0.0"`
	Port uint16 `env:"VENTURA_PORT" env-default:"4000"`
}

type DbConfig struct {
	Host     string `env:"VENTURA_PG_HOST" env-default:"localhost"`
	Port     uint16 `env:"VENTURA_PG_PORT" env-default:"5432"`
	Database string `env:"VENTURA_PG_DATABASE" env-default:"ventura_db"`
	User     string `env:"VENTURA_PG_USER" env-default:"ventura"`
	Password string `env:"VENTURA_PG_PASSWORD" env-default:"pwd"`
	Schema   string `env:"VENTURA_PG_SCHEMA" env-default:"public"`
}

func (d DbConfig) toDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s,public",
		d.User, d.Password, d.Host, d.Port, d.Database, d.Schema)
}

type JwtConfig struct {
	Secret        string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer        string `env:"JWT_ISSUER" env-default:"ventura-auth"`
	SessionExpiry string `env:"SESSION_EXPIRY" env-default:"1h"`
}

type EmailConfig struct {
	Enabled  bool   `env:"EMAIL_ENABLED" env-default:"false"`
	Host     string `env:"EMAIL_HOST" env-default:"localhost"`
	Port     uint16 `env:"EMAIL_PORT" env-default:"1025"`
	Username string `env:"EMAIL_USERNAME" env-default:""`
	Password string `env:"EMAIL_PASSWORD" env-default:""`
	From     string `env:"EMAIL_FROM" env-default:"noreply@ventura.app"`
	TLS      bool   `env:"EMAIL_TLS" env-default:"false"`
}

type StoreConfig struct {
	// Kind selects the persistence backend: memory, file, or postgres.
	Kind    string `env:"VENTURA_STORE" env-default:"memory"`
	DataDir string `env:"VENTURA_DATA_DIR" env-default:"./data"`
}

type Config struct {
	ServerConfig ServerConfig
	DbConfig     DbConfig
	JwtConfig    JwtConfig
	EmailConfig  EmailConfig
	StoreConfig  StoreConfig
	BaseURL      string `env:"VENTURA_BASE_URL" env-default:"http://localhost:4000"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err == nil {
		slog.Info("Configuration loaded from .env file")
	}

	config := Config{}
	cleanenv.ReadEnv(&config)

	notificationManager, err := buildNotificationManager(config.EmailConfig)
	if err != nil {
		slog.Error("Failed to initialize notification manager", "error", err)
		os.Exit(-1)
	}

	profileRepo, cacheStore, err := buildStores(config)
	if err != nil {
		slog.Error("Failed to initialize stores", "store", config.StoreConfig.Kind, "error", err)
		os.Exit(-1)
	}

	sessionExpiry, err := time.ParseDuration(config.JwtConfig.SessionExpiry)
	if err != nil {
		slog.Error("Invalid session expiry", "value", config.JwtConfig.SessionExpiry, "error", err)
		os.Exit(-1)
	}

	client := provider.NewLocalClient(
		provider.WithJWTSecret(config.JwtConfig.Secret),
		provider.WithIssuer(config.JwtConfig.Issuer),
		provider.WithSessionExpiry(sessionExpiry),
		provider.WithNotificationManager(notificationManager))

	profileService := profiles.NewService(profileRepo)
	reconciler := finalize.NewReconciler(
		sessionprobe.New(client), cacheStore, profileService, sessionflags.NewStore())

	handle := webflow.NewHandle(client, cacheStore, profileService,
		webflow.WithBaseURL(config.BaseURL),
		webflow.WithReconciler(reconciler))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(ratelimit.NewMiddleware(ratelimit.DefaultConfig()).Handler)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	jwtAuth := jwtauth.New("HS256", []byte(config.JwtConfig.Secret), nil)
	webflow.Routes(r, handle, jwtAuth)

	addr := fmt.Sprintf("%s:%d", config.ServerConfig.Host, config.ServerConfig.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Starting Ventura auth service", "addr", addr, "store", config.StoreConfig.Kind)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Failed to shut down cleanly", "error", err)
	}
}

func buildNotificationManager(config EmailConfig) (*notification.NotificationManager, error) {
	nm := notification.NewNotificationManager()

	if config.Enabled {
		notifier, err := notification.NewEmailNotifier(notification.SMTPConfig{
			Host:     config.Host,
			Port:     int(config.Port),
			Username: config.Username,
			Password: config.Password,
			From:     config.From,
			TLS:      config.TLS,
		})
		if err != nil {
			return nil, err
		}
		nm.RegisterNotifier(notification.EmailSystem, notifier)
	} else {
		slog.Info("Email delivery disabled, logging notifications instead")
		nm.RegisterNotifier(notification.EmailSystem, &notification.LogNotifier{})
	}

	if err := notification.RegisterDefaults(nm); err != nil {
		return nil, err
	}
	return nm, nil
}

func buildStores(config Config) (profiles.Repository, intentcache.Store, error) {
	switch config.StoreConfig.Kind {
	case "memory":
		return profiles.NewInMemoryRepository(), intentcache.NewInMemoryStore(), nil
	case "file":
		profileRepo, err := profiles.NewFileRepository(config.StoreConfig.DataDir)
		if err != nil {
			return nil, nil, err
		}
		cacheStore, err := intentcache.NewFileStore(config.StoreConfig.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return profileRepo, cacheStore, nil
	case "postgres":
		pool, err := pgxpool.New(context.Background(), config.DbConfig.toDatabaseURL())
		if err != nil {
			return nil, nil, err
		}
		// The intent cache stays file-backed: it is a single-slot scratch
		// record, not durable relational data.
		cacheStore, err := intentcache.NewFileStore(config.StoreConfig.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return profiles.NewPostgresRepository(pool), cacheStore, nil
	default:
		return nil, nil, fmt.Errorf("unknown store kind: %s", config.StoreConfig.Kind)
	}
}
