package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"f0oster/adsync/activedirectory"
	"f0oster/adsync/config"
	"f0oster/adsync/database"
	"f0oster/adsync/remote/duoapi"
	"f0oster/adsync/scheduler"
	"f0oster/adsync/syncer"
	"f0oster/adsync/web"
)

func main() {
	envFile := flag.String("env", "settings.env", "path to the dotenv file")
	syncFile := flag.String("config", "sync.yaml", "path to the sync config")
	resetDB := flag.Bool("reset-db", false, "drop and recreate the sync database, then exit")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	logger := zapLogger.Sugar()

	envCfg, err := config.LoadEnvConfig(*envFile)
	if err != nil {
		logger.Fatalw("failed to load env config", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *resetDB {
		if envCfg.ManagementDSN == "" {
			logger.Fatalw("MANAGEMENT_DSN is required for -reset-db")
		}
		if err := database.ResetDatabase(ctx, envCfg.ManagementDSN, envCfg.DatabaseDSN, "adsync"); err != nil {
			logger.Fatalw("failed to reset database", "error", err)
		}
		logger.Infow("database reset complete")
		return
	}

	syncCfg, err := config.LoadSyncConfig(*syncFile)
	if err != nil {
		logger.Fatalw("failed to load sync config", "error", err)
	}

	adInstance := activedirectory.NewActiveDirectoryInstance(envCfg.BaseDN, envCfg.DcFQDN, envCfg.PageSize, logger)
	if err := adInstance.Connect(envCfg.Username, envCfg.Password); err != nil {
		logger.Fatalw("failed to connect to Active Directory", "error", err)
	}
	defer adInstance.Close()

	db := database.NewDatabase(envCfg.DatabaseDSN)
	if err := db.Connect(ctx); err != nil {
		logger.Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close()
	store := database.NewGroupStore(db)

	client := duoapi.NewClient(duoapi.Config{
		Host:           envCfg.APIHost,
		IntegrationKey: envCfg.APIIntegrationKey,
		SecretKey:      envCfg.APISecretKey,
		Retries:        syncCfg.Resilience.Retries,
		BackoffMin:     syncCfg.Resilience.BackoffMin.Duration,
		BackoffMax:     syncCfg.Resilience.BackoffMax.Duration,
		CallTimeout:    syncCfg.Resilience.CallTimeout.Duration,
	}, logger)

	sync := syncer.NewSyncer(adInstance, store, client, syncCfg, logger)

	if envCfg.WebAddr != "" {
		server := web.NewServer(sync, store, envCfg.WebAddr, logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Errorw("status server stopped", "error", err)
			}
		}()
	}

	ticker := scheduler.NewTicker(ctx, sync, syncCfg, logger)
	ticker.Start()

	<-ctx.Done()
	logger.Infow("shutdown signal received")
	ticker.Stop()
}
