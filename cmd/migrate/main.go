package main

import (
	"context"
	"flag"

	"github.com/sirupsen/logrus"

	"github.com/rayyanshah04/FlexPay/internal/config"
	"github.com/rayyanshah04/FlexPay/internal/logging"
	"github.com/rayyanshah04/FlexPay/internal/store"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up | down")
	steps := flag.Int("steps", 1, "Number of migrations to roll back with -direction=down")
	flag.Parse()

	cfg, err := config.Load(".")
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	log := logging.SetupLogging(cfg.LogLevel)

	pool, err := store.Open(context.Background(), cfg.DBSource, 2)
	if err != nil {
		log.WithError(err).Fatal("Unable to connect to database")
	}
	defer pool.Close()

	migrator, err := store.NewMigrator(pool, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to prepare migrations")
	}
	defer migrator.Close()

	switch *direction {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down(*steps)
	default:
		log.WithField("direction", *direction).Fatal("Unknown migration direction")
	}
	if err != nil {
		migrator.Close()
		pool.Close()
		log.WithError(err).Fatal("Migration failed")
	}
}
