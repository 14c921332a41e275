package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("could not load .env file")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	config := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := loadConfig(path)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load config")
		}
		config = loaded
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := setupDatabase(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup database")
	}
	defer pool.Close()

	services, err := setupServices(pool, config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup services")
	}
	defer services.Publisher.Close()

	for _, scheduler := range services.Schedulers {
		if err := scheduler.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start command scheduler")
		}
	}
	if err := services.Sweeper.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start retention sweeper")
	}
	if err := services.Dispatcher.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start notification dispatcher")
	}

	server := setupServer(services, config)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	for _, scheduler := range services.Schedulers {
		if err := scheduler.Stop(); err != nil {
			log.Error().Err(err).Msg("scheduler stop failed")
		}
	}
	if err := services.Sweeper.Stop(); err != nil {
		log.Error().Err(err).Msg("sweeper stop failed")
	}
	if err := services.Dispatcher.Stop(); err != nil {
		log.Error().Err(err).Msg("dispatcher stop failed")
	}
}
