package migrations

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Migration is one versioned schema change for a single database file.
// The economy splits state across the accounts, inventory and trades
// databases, so each keeps its own migration directory and version table.
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// Migrator applies pending migrations to one database.
type Migrator struct {
	db     *sql.DB
	dir    string
	logger *logrus.Logger
}

// NewMigrator creates a migrator reading .sql files from dir.
func NewMigrator(db *sql.DB, dir string, logger *logrus.Logger) *Migrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Migrator{db: db, dir: dir, logger: logger}
}

func (m *Migrator) initialize() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		return fmt.Errorf("error creating schema_migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) applied() (map[string]bool, error) {
	rows, err := m.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("error reading applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// Load reads every .sql file in the migration directory, sorted by version
// prefix. Filenames follow NNN_description.sql.
func (m *Migrator) Load() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := os.ReadFile(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		parts := strings.SplitN(strings.TrimSuffix(entry.Name(), ".sql"), "_", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid migration filename: %s", entry.Name())
		}

		migrations = append(migrations, Migration{
			Version:     parts[0],
			Description: strings.ReplaceAll(parts[1], "_", " "),
			SQL:         string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

func (m *Migrator) apply(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(migration.SQL); err != nil {
		tx.Rollback()
		return fmt.Errorf("error applying migration %s: %w", migration.Version, err)
	}

	if _, err := tx.Exec(
		`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
		migration.Version, migration.Description,
	); err != nil {
		tx.Rollback()
		return fmt.Errorf("error recording migration %s: %w", migration.Version, err)
	}

	return tx.Commit()
}

// Up applies every pending migration in version order.
func (m *Migrator) Up() error {
	if err := m.initialize(); err != nil {
		return err
	}

	applied, err := m.applied()
	if err != nil {
		return err
	}

	migrations, err := m.Load()
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		m.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("applying migration")

		if err := m.apply(migration); err != nil {
			return err
		}
	}

	return nil
}

// Create writes an empty migration file with the next free version number
// and returns its path.
func (m *Migrator) Create(description string) (string, error) {
	migrations, err := m.Load()
	if err != nil && !os.IsNotExist(err) {
		return "", err
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", err
	}

	version := fmt.Sprintf("%03d", len(migrations)+1)
	name := fmt.Sprintf("%s_%s.sql", version, strings.ReplaceAll(description, " ", "_"))
	path := filepath.Join(m.dir, name)

	content := fmt.Sprintf("-- Migration: %s\n-- Created: %s\n\n", description, time.Now().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}

	return path, nil
}
