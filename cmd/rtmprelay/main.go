package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/livehub/rtmp"
	"github.com/livehub/rtmp/config"
	"github.com/livehub/rtmp/httpflv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			panic(err)
		}
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		logger.Info("[main] shutting down", zap.Stringer("signal", sig))
		cancel()
	}()

	registry := rtmp.NewGroupRegistry(logger)
	pulls := httpflv.NewPullManager(ctx, logger, registry, cfg.Pull, &http.Client{})

	server := &rtmp.Server{
		Addr:          cfg.RTMP.Addr,
		Logger:        logger,
		Registry:      registry,
		ChunkSize:     cfg.RTMP.ChunkSize,
		WindowAckSize: cfg.RTMP.WindowAckSize,
		OriginStarter: pulls,
	}

	var wg sync.WaitGroup
	if cfg.HTTP.Addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serveHTTP(ctx, logger, cfg, registry, pulls)
		}()
	}

	if err := server.ListenAndServe(ctx); err != nil {
		logger.Error("[main] rtmp server stopped", zap.Error(err))
		cancel()
	}
	wg.Wait()
	pulls.Wait()
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()
	if cfg.Development {
		zapConfig = zap.NewDevelopmentConfig()
	}
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, err
	}
	zapConfig.Level = level
	return zapConfig.Build()
}

func serveHTTP(ctx context.Context, logger *zap.Logger, cfg *config.Config, registry *rtmp.GroupRegistry, pulls *httpflv.PullManager) {
	handler := httpflv.NewHandler(logger, registry, pulls, cfg.HTTP.SubscriberQueue)
	mux := http.NewServeMux()
	if cfg.HTTP.WebSocket {
		mux.Handle(httpflv.WebSocketPrefix, httpflv.NewWSHandler(handler))
	}
	mux.Handle("/", handler)

	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Streaming responses never finish on their own.
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			httpServer.Close()
		}
	}()

	logger.Info("[main] http-flv listening", zap.String("addr", cfg.HTTP.Addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("[main] http server stopped", zap.Error(err))
	}
}
