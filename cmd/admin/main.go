package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/class-measures-api/internal/repository"
	"github.com/noah-isme/class-measures-api/internal/service"
	"github.com/noah-isme/class-measures-api/pkg/config"
	"github.com/noah-isme/class-measures-api/pkg/database"
	"github.com/noah-isme/class-measures-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close() //nolint:errcheck

	cli := &commandLine{
		users:   service.NewUserService(repository.NewUserRepository(db), validator.New(), logr),
		migrate: func() error { return database.Migrate(db) },
	}
	if err := cli.run(os.Args); err != nil {
		if errors.Is(err, errHelp) {
			os.Exit(2)
		}
		log.Fatal(err)
	}
}
