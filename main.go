package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"api_crowdsale/api"
	"api_crowdsale/internal/config"
	"api_crowdsale/internal/crowdsale"
	"api_crowdsale/internal/host"
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		panic(fmt.Errorf("error loading config: %v", err))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("error building logger: %v", err))
	}
	defer logger.Sync()

	storage, stateStore, closeStorage, err := newStorage(cfg)
	if err != nil {
		logger.Fatal("error opening storage", zap.String("storage", cfg.Storage), zap.Error(err))
	}
	defer closeStorage()

	bank := host.NewBank(cfg.ProgramID, logger.Named("host"))
	if stateStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := bank.Persist(ctx, stateStore)
		cancel()
		if err != nil {
			logger.Fatal("error loading bank state", zap.Error(err))
		}
	}
	crowdsaleService := crowdsale.NewService(storage, bank, logger.Named("crowdsale"))

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	api.InitRoutes(r, crowdsaleService, bank, logger)

	logger.Info("starting server",
		zap.String("port", cfg.Port),
		zap.String("program_id", cfg.ProgramID.String()),
		zap.String("storage", cfg.Storage),
	)
	if err := r.Run(":" + cfg.Port); err != nil {
		panic(fmt.Errorf("error trying to start server: %v", err))
	}
}

func newLogger(cfg config.Server) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newStorage returns the record storage and, when records outlive the
// process, the store that keeps the bank state alongside them.
func newStorage(cfg config.Server) (crowdsale.Storage, host.StateStore, func(), error) {
	if cfg.Storage != config.StorageRedis {
		return crowdsale.NewLocalStorage(), nil, func() {}, nil
	}
	rdb, err := crowdsale.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, nil, err
	}
	storage := crowdsale.NewRedisStorage(rdb, cfg.RedisPrefix)
	return storage, storage, func() { _ = rdb.Close() }, nil
}
