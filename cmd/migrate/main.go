package main

import (
	"os"

	"github.com/itsadrianapaiva/amr-app-sub001/config"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/logger"
	"github.com/itsadrianapaiva/amr-app-sub001/internal/repository"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := logger.New(cfg.Log)

	if err := repository.Migrate(cfg.Database.DSN()); err != nil {
		log.WithError(err).Fatal("migrate")
	}
	log.Info("migrations applied")
}
