package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
	"google.golang.org/api/option"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/panyam/projauth"
	"github.com/panyam/projauth/config"
	"github.com/panyam/projauth/email"
	ghoauth "github.com/panyam/projauth/oauth2"
	"github.com/panyam/projauth/stores/fs"
	gaestore "github.com/panyam/projauth/stores/gae"
	gormstore "github.com/panyam/projauth/stores/gorm"
	"github.com/panyam/projauth/stores/pg"
	redisstore "github.com/panyam/projauth/stores/redis"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := newZapLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()
	logger := slog.New(zapslog.NewHandler(zlog.Core()))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accounts, closeStore, err := openAccountStore(ctx, cfg, logger)
	if err != nil {
		zlog.Fatal("account store", zap.String("store", cfg.Store), zap.Error(err))
	}
	defer closeStore()

	auth := &projauth.ProjAuth{
		Store:           accounts,
		Hasher:          &projauth.BcryptHasher{Cost: cfg.BcryptCost},
		JWTSecretKey:    cfg.JWTSecret,
		JWTIssuer:       cfg.JWTIssuer,
		SessionTTL:      cfg.SessionTTL,
		StateTTL:        cfg.StateTTL,
		ResetTokenTTL:   cfg.ResetTokenTTL,
		ProviderTimeout: cfg.ProviderTimeout,
		FrontendURL:     cfg.FrontendURL,
		Logger:          logger,
	}

	if cfg.SMTPEnabled() {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			zlog.Warn("smtp sender init failed, reset emails will be logged without their token", zap.Error(err))
		} else {
			auth.EmailSender = sender
		}
	}

	if cfg.GithubEnabled() {
		client := ghoauth.NewGithubClient(cfg.GithubClientID, cfg.GithubClientSecret, cfg.GithubCallbackURL)
		client.Timeout = cfg.ProviderTimeout
		auth.GithubClient = client
	}

	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			zlog.Warn("redis ping failed, using in-memory oauth states", zap.Error(err))
		} else {
			auth.StateStore = redisstore.NewStateStore(redisClient)
		}
		cancel()
	}

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           auth.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Error("shutdown", zap.Error(err))
		}
	}()

	zlog.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.Store))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatal("server error", zap.Error(err))
	}
	zlog.Info("server stopped")
}

func newZapLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.LogFormat == "text" {
		zcfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func openAccountStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (projauth.AccountStore, func(), error) {
	noop := func() {}
	switch cfg.Store {
	case config.StoreFS:
		if err := os.MkdirAll(cfg.FSPath, 0755); err != nil {
			return nil, noop, err
		}
		return fs.NewFSAccountStore(cfg.FSPath), noop, nil

	case config.StoreGorm:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, noop, err
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, noop, err
		}
		closer := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return gormstore.NewAccountStore(db), closer, nil

	case config.StorePG:
		pool, err := pg.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		if err := pg.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, noop, err
		}
		return pg.NewAccountStore(pool), pool.Close, nil

	case config.StoreGAE:
		opts := []option.ClientOption{option.WithUserAgent("projauth")}
		if cfg.DatastoreCredentials != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.DatastoreCredentials))
		}
		client, err := datastore.NewClient(ctx, cfg.DatastoreProj, opts...)
		if err != nil {
			return nil, noop, err
		}
		closer := func() {
			if err := client.Close(); err != nil {
				logger.Warn("datastore close", "error", err)
			}
		}
		return gaestore.NewAccountStore(client, cfg.DatastoreNS), closer, nil
	}
	return nil, noop, fmt.Errorf("unknown store %q", cfg.Store)
}
