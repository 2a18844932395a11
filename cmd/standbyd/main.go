package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dreamware/ptpstandby/internal/config"
	"github.com/dreamware/ptpstandby/internal/logging"
	"github.com/dreamware/ptpstandby/internal/metrics"
	"github.com/dreamware/ptpstandby/internal/shm"
)

const (
	envConfig = "PTPSTANDBY_CONFIG"
	envListen = "PTPSTANDBY_LISTEN"
)

func main() {
	logging.Configure("standbyd", logging.ProfileRuntime)

	cfg, err := loadConfig(os.Getenv(envConfig))
	if err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}
	addr := getenv(envListen, cfg.Standby.Listen)

	metrics.Register()

	d, err := newDaemon(cfg,
		shm.WithDir(cfg.Standby.ShmDir),
		shm.WithTimeout(cfg.Standby.AttachTimeout),
		shm.WithLogger(log.Logger),
	)
	if err != nil {
		// Attach timeouts land here too: never retried automatically.
		log.Fatal().Err(err).Msg("open shared channels")
	}
	defer d.Close()

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           d.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("standbyd listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go d.monitor.Start(ctx)

	<-ctx.Done()
	d.monitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info().Msg("standbyd stopped")
}

// loadConfig reads path when set and falls back to the built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		log.Info().Msg("no configuration file, using defaults")
		return config.Default(), nil
	}
	return config.Load(path)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
