package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"health-data-access/internal/adapters/auth/jwtauth"
	bksrest "health-data-access/internal/adapters/bookings/rest"
	dirrest "health-data-access/internal/adapters/directory/rest"
	"health-data-access/internal/platform/config"
	"health-data-access/internal/platform/logger"
	"health-data-access/internal/ports/auth"
	"health-data-access/internal/ports/bookings"
	"health-data-access/internal/ports/directory"
	"health-data-access/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level: cfg.LogLevel,
		JSON:  cfg.LogJSON,
		App:   "health-data-access",
	})

	var verifier auth.AuthVerifier
	if cfg.JWTSecret != "" {
		verifier = jwtauth.NewVerifier(cfg.JWTSecret)
	} else {
		log.Warn().Msg("JWT_SECRET empty, running in dev auth mode")
	}

	var dir directory.Directory
	if cfg.DirectoryBaseURL != "" {
		dir, err = dirrest.NewClient(dirrest.Config{
			BaseURL: cfg.DirectoryBaseURL,
			APIKey:  cfg.DirectoryAPIKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("directory client")
		}
	}

	var bks bookings.Service
	if cfg.BookingsBaseURL != "" {
		bks, err = bksrest.NewClient(bksrest.Config{
			BaseURL: cfg.BookingsBaseURL,
			APIKey:  cfg.BookingsAPIKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("bookings client")
		}
	}

	rt := router.New(router.Options{
		Cfg:          cfg,
		Log:          log,
		AuthVerifier: verifier,
		Directory:    dir,
		Bookings:     bks,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      rt,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-done
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}

	// Después de cortar el tráfico, drenar la cola de auditoría.
	rt.Close()
}
