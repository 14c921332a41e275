package main

import (
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/mkthub/edi/internal/dbconfig"
)

//go:embed schema.sql
var schema string

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
}

func run() error {
	_ = godotenv.Load()

	cfg := dbconfig.NewConfigFromEnv()
	database, err := sql.Open("postgres", cfg.PlainDSN())
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	defer database.Close()

	if err := database.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := database.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Msg("schema applied")
	return nil
}
