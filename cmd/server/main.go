package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/herdbook/internal/config"
	"github.com/iliyamo/herdbook/internal/database"
	"github.com/iliyamo/herdbook/internal/handler"
	"github.com/iliyamo/herdbook/internal/logging"
	"github.com/iliyamo/herdbook/internal/mail"
	"github.com/iliyamo/herdbook/internal/middleware"
	"github.com/iliyamo/herdbook/internal/queue"
	"github.com/iliyamo/herdbook/internal/repository"
	"github.com/iliyamo/herdbook/internal/repository/memory"
	"github.com/iliyamo/herdbook/internal/router"
	"github.com/iliyamo/herdbook/internal/service"
	"github.com/iliyamo/herdbook/internal/storage"
)

// stores groups the persistence backends selected by STORE_DRIVER.
type stores struct {
	animals service.AnimalStore
	users   service.UserStore
	tokens  service.TokenStore
	db      database.Pinger // nil for the in-memory driver
	close   func()
}

func main() {
	envErr := godotenv.Load() // real environment variables win over .env
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Debug("no .env file loaded", "err", envErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer st.close()

	assets, err := storage.NewLocal(cfg.UploadDir, cfg.UploadMaxBytes)
	if err != nil {
		logger.Error("prepare upload dir", "dir", cfg.UploadDir, "err", err)
		os.Exit(1)
	}

	// Redis is optional; without it the limiter passes everything through.
	rdb, err := config.NewRedisClient(ctx, config.LoadRedisConfig())
	if err != nil {
		logger.Warn("redis unavailable, rate limiting disabled", "err", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logger)

	publisher := service.NewMailPublisher(cfg.AMQPURL, cfg.MailQueue, logger)
	if cfg.MailConsumer {
		sender := mail.SMTPSender{
			Host: cfg.SMTPHost,
			Port: cfg.SMTPPort,
			User: cfg.SMTPUser,
			Pass: cfg.SMTPPass,
			From: cfg.SMTPFrom,
		}
		go func() {
			err := queue.StartMailConsumer(ctx, queue.ConsumerConfig{
				URL:         cfg.AMQPURL,
				Queue:       cfg.MailQueue,
				FrontendURL: cfg.FrontendURL,
				Prefetch:    10,
				SendTimeout: 30 * time.Second,
				OnResult:    service.RecordMailResult,
			}, sender, logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mail consumer stopped", "err", err)
			}
		}()
	}

	authSvc := service.NewAuthService(st.users, st.tokens, publisher, service.AuthConfig{
		Secret:     cfg.JWTSecret,
		AccessTTL:  cfg.AccessTTL(),
		RefreshTTL: cfg.RefreshTTL(),
		VerifyTTL:  cfg.VerifyTTL(),
		BcryptCost: cfg.BcryptCost,
	}, logger)
	animalSvc := service.NewAnimalService(st.animals, assets, logger)

	e := router.New(router.Deps{
		Logger:    logger,
		DB:        st.db,
		Auth:      handler.NewAuthHandler(authSvc, cfg.RequestTimeout, logger),
		Animals:   handler.NewAnimalHandler(animalSvc, cfg.RequestTimeout, logger),
		Users:     handler.NewUserHandler(service.NewProfileService(st.users), cfg.RequestTimeout, logger),
		JWTAuth:   middleware.JWTAuth(cfg.JWTSecret, st.users, logger),
		RateLimit: limiter,
		UploadDir: assets.Dir(),
		UploadMax: cfg.UploadMaxBytes,
	})

	addr := ":" + cfg.Port
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	publisher.Wait()
	logger.Info("server stopped")
}

func openStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		return &stores{
			animals: memory.NewAnimalRepo(),
			users:   memory.NewUserRepo(),
			tokens:  memory.NewTokenRepo(),
			close:   func() {},
		}, nil
	}
	if cfg.StoreDriver != config.StoreMySQL {
		return nil, errors.New("unknown STORE_DRIVER " + cfg.StoreDriver)
	}

	if cfg.DBMigrate {
		if err := database.Migrate(cfg, logger); err != nil {
			return nil, err
		}
	}
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &stores{
		animals: repository.NewAnimalRepo(db),
		users:   repository.NewUserRepo(db),
		tokens:  repository.NewTokenRepo(db),
		db:      db,
		close:   func() { closeDB(db, logger) },
	}, nil
}

func closeDB(db *sql.DB, logger *slog.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("close database", "err", err)
	}
}
