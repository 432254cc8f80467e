package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"studentparent-server-go/auth"
	"studentparent-server-go/dataflow"
	"studentparent-server-go/db"
	"studentparent-server-go/handlers"
	"studentparent-server-go/jolt"
	"studentparent-server-go/query"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func runServer(ctx context.Context) error {
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	// Redis backs the cache and sessions when configured; otherwise both stay in memory.
	var (
		cache    db.Cache        = db.NewMemoryCache()
		sessions db.SessionStore = db.NewMemorySessions()
	)
	if cfg.RedisAddr != "" {
		redisClient, err := db.InitializeRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.WithError(err).Warn("⚠️ Redis 不可用，使用内存缓存")
		} else {
			defer redisClient.Close()
			redisService := db.NewRedisService(redisClient, logger)
			cache, sessions = redisService, redisService
		}
	}

	registry := jolt.DefaultRegistry()
	if cfg.TransformsFile != "" {
		n, err := registry.LoadFile(cfg.TransformsFile)
		if err != nil {
			return err
		}
		logger.WithField("count", n).WithField("file", cfg.TransformsFile).Info("已加载自定义转换")
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handlers.NewRouter(handlers.Deps{
		Engine:   query.NewEngine(store, logger, query.WithCache(cache, cfg.CacheTTL)),
		Store:    store,
		Registry: registry,
		Dataflow: dataflow.NewService(store, registry, logger),
		Auth:     auth.NewService(store, sessions, cfg.SessionTTL, logger),
		Log:      logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
