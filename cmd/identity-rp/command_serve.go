// Copyright (c) 2025 Justin Cranford
//
//

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mpoauthn/internal/ceremony"
	"mpoauthn/internal/config"
	josecrypto "mpoauthn/internal/crypto/jose"
	"mpoauthn/internal/httpserver"
	"mpoauthn/internal/jwks"
	"mpoauthn/internal/logging"
	"mpoauthn/internal/repository/orm"
	"mpoauthn/internal/rotation"
	"mpoauthn/internal/token"
	"mpoauthn/internal/webauthnrp"
)

// newServeCommand wires every component of §2 to configuration loaded
// from the environment and serves the external HTTP interfaces of §6
// until an interrupt or terminate signal arrives.
func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the relying-party HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			return serve()
		},
	}
}

func serve() error {
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, shutdownLogging, err := logging.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	if err != nil {
		bootLogger.Error("failed to initialize logging", "error", err)

		return err
	}
	defer func() { _ = shutdownLogging(context.Background()) }()

	config.LogStartup(logger, cfg)

	db, sqlDB, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer sqlDB.Close()

	if err := orm.ApplyPostgresMigrations(sqlDB, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.Database,
		PoolSize:     cfg.Redis.MaxConnections,
		MinIdleConns: 1,
	})
	defer redisClient.Close()

	credentials := orm.NewCredentialRepository(db)
	keys := orm.NewKeyRepository(db)
	ceremonies := ceremony.NewRedisStore(redisClient)

	cipher, err := josecrypto.NewEnvelopeCipher(cfg.Rotation.MasterEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize envelope cipher: %w", err)
	}

	engine := rotation.NewEngine(logger, keys, cipher, rotation.Config{
		Enabled:          cfg.Rotation.Enabled,
		KeySize:          cfg.Rotation.KeySize,
		KeyIDPrefix:      cfg.Rotation.KeyIDPrefix,
		RotationInterval: cfg.Rotation.RotationInterval,
		GracePeriod:      cfg.Rotation.GracePeriod,
		RetentionPeriod:  cfg.Rotation.RetentionPeriod,
	})

	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelInit()

	if err := engine.Initialize(initCtx); err != nil {
		return fmt.Errorf("failed to initialize signing key: %w", err)
	}

	scheduler := rotation.NewScheduler(logger, engine, cfg.Rotation.RotationInterval)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	signer := token.NewSigner(engine, cfg.Token.Issuer, cfg.Token.Audience, cfg.Token.Lifetime)

	ceremonyEngine, err := webauthnrp.NewEngine(logger, webauthnrp.Config{
		RPID:          cfg.RelyingParty.ID,
		RPDisplayName: cfg.RelyingParty.Name,
		RPOrigins:     []string{"https://" + cfg.RelyingParty.ID},
		CeremonyTTL:   5 * time.Minute,
	}, ceremonies, credentials, signer)
	if err != nil {
		return fmt.Errorf("failed to initialize webauthn ceremony engine: %w", err)
	}

	publisher := jwks.NewPublisher(keys)
	jwksHandler := jwks.NewHandler(logger, publisher)
	handlers := httpserver.NewHandlers(logger, ceremonyEngine, jwksHandler)
	app := httpserver.NewApp(logger, handlers)

	listenErr := make(chan error, 1)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.HTTP.BindAddress, cfg.HTTP.BindPort)
		listenErr <- app.Listen(addr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("http server exited: %w", err)
		}
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	}

	return nil
}

func openDatabase(cfg *config.Config) (*gorm.DB, *sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.Name, cfg.DB.Username, cfg.DB.Password,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract *sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.DB.MaxPoolSize)
	sqlDB.SetMaxIdleConns(cfg.DB.MaxPoolSize)

	return db, sqlDB, nil
}
