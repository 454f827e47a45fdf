package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"retail-ledger/config"
	pgStorage "retail-ledger/internal/adapter/storage/postgres"
	"retail-ledger/pkg/logger"
)

func main() {
	var (
		configPath string
		logLevel   string
	)
	flag.StringVar(&configPath, "config", "", "Path to config file (default: ./config.yaml or ./config/config.yaml)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}
	command := args[0]

	log := logger.New(logLevel, true, "retail-ledger-migrate")

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	m, err := pgStorage.NewMigrator(cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create migrator")
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close migrator")
		}
	}()

	log.Info().Str("command", command).Str("database", cfg.Database.DBName).Msg("Migration CLI started")

	switch command {
	case "up":
		err = m.Up()

	case "down":
		err = m.Down()

	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = m.Version()
		if err == nil {
			if version == 0 {
				log.Info().Msg("No migrations applied")
			} else {
				log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Current migration version")
			}
		}

	case "force":
		if len(args) < 2 {
			log.Fatal().Msg("Version required. Usage: migrate force <version>")
		}
		version, convErr := strconv.Atoi(args[1])
		if convErr != nil {
			log.Fatal().Str("value", args[1]).Msg("Invalid version number")
		}
		err = m.Force(version)

	default:
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatal().Err(err).Str("command", command).Msg("Migration failed")
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: migrate [flags] <command> [args]

Commands:
  up              Apply all pending migrations
  down            Roll back all migrations
  version         Show the current migration version
  force <version> Set the version without running migrations

Flags:
`)
	flag.PrintDefaults()
}
