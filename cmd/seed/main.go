package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/db"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/logging"
	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/seed"
)

func main() {
	providers := flag.Int("providers", 100, "number of providers to create")
	patients := flag.Int("patients", 9000, "number of patients to create")
	seedValue := flag.Uint64("seed", 0, "faker seed, 0 for random")
	flag.Parse()

	logger := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	logger.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 4)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	ds, err := seed.Generate(gofakeit.New(*seedValue), *providers, *patients)
	if err != nil {
		logger.Fatal().Err(err).Msg("generate dataset")
	}

	err = seed.LoadPostgres(context.Background(), pool, ds, func(table string, done, total int) {
		logger.Info().Str("table", table).Int("done", done).Int("total", total).Msg("seeded")
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}

	logger.Info().Msg("seed complete")
}
