package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/fadedpez/crates/pkg/db/migrations"
)

// databases lists every store the economy splits its state across. Each
// gets its own migration directory and version table.
var databases = []string{"accounts", "inventory", "trades"}

func main() {
	createCmd := flag.NewFlagSet("create", flag.ExitOnError)
	createDir := createCmd.String("dir", "migrations", "root directory for migration files")

	migrateCmd := flag.NewFlagSet("migrate", flag.ExitOnError)
	dataDir := migrateCmd.String("data", "data", "directory holding the SQLite database files")
	migrateDir := migrateCmd.String("dir", "migrations", "root directory for migration files")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logger := logrus.New()

	switch os.Args[1] {
	case "create":
		createCmd.Parse(os.Args[2:])
		if createCmd.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "create needs a database name and a description")
			printUsage()
			os.Exit(1)
		}
		createMigration(logger, *createDir, createCmd.Arg(0), createCmd.Arg(1))

	case "migrate":
		migrateCmd.Parse(os.Args[2:])
		applyMigrations(logger, *dataDir, *migrateDir)

	case "help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migration create DATABASE DESCRIPTION  - create a new migration file")
	fmt.Println("  migration migrate                      - apply pending migrations to every database")
	fmt.Println("  migration help                         - show this help")
	fmt.Println()
	fmt.Println("Databases:", databases)
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  migration create inventory \"add provenance column\"")
	fmt.Println("  migration migrate -data data")
}

func validDatabase(name string) bool {
	for _, db := range databases {
		if db == name {
			return true
		}
	}
	return false
}

func createMigration(logger *logrus.Logger, dir, database, description string) {
	if !validDatabase(database) {
		logger.Fatalf("unknown database %q, want one of %v", database, databases)
	}

	// The migrator only touches the filesystem here; an in-memory handle
	// satisfies its constructor
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		logger.WithError(err).Fatal("opening database")
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db, filepath.Join(dir, database), logger)
	path, err := migrator.Create(description)
	if err != nil {
		logger.WithError(err).Fatal("creating migration")
	}

	fmt.Println("created", path)
	fmt.Println("edit this file to add the schema change")
}

func applyMigrations(logger *logrus.Logger, dataDir, dir string) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		logger.WithError(err).Fatal("creating data directory")
	}

	for _, database := range databases {
		migrationDir := filepath.Join(dir, database)
		if _, err := os.Stat(migrationDir); os.IsNotExist(err) {
			continue
		}

		db, err := sql.Open("sqlite3", filepath.Join(dataDir, database+".db"))
		if err != nil {
			logger.WithError(err).Fatalf("opening %s database", database)
		}

		migrator := migrations.NewMigrator(db, migrationDir, logger)
		if err := migrator.Up(); err != nil {
			db.Close()
			logger.WithError(err).Fatalf("migrating %s database", database)
		}
		db.Close()

		logger.WithField("database", database).Info("migrations applied")
	}
}
