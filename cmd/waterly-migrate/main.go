// Package main provides an offline migration runner for both of
// waterly's SQLite databases (the Measurement Store and the Settings
// store) without starting the full daemon.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danluca/waterly/internal/migrate"

	_ "modernc.org/sqlite"

	"database/sql"
)

func main() {
	dataDir := flag.String("data-dir", "data", "directory holding the yearly-rolling measurement databases")
	measurementMigrations := flag.String("measurement-migrations", "db", "directory of measurement-store migration scripts")
	configDB := flag.String("config-db", "waterly-config.sqlite", "path to the settings database")
	configMigrations := flag.String("config-migrations", "db/config", "directory of settings-store migration scripts")
	year := flag.Int("year", time.Now().Year(), "calendar year of the measurement database to migrate")
	flag.Parse()

	measurementPath := filepath.Join(*dataDir, fmt.Sprintf("waterly-%d.sqlite", *year))
	if err := migrateOne(measurementPath, *measurementMigrations); err != nil {
		fmt.Fprintf(os.Stderr, "measurement store: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("measurement store %s: up to date\n", measurementPath)

	if err := migrateOne(*configDB, *configMigrations); err != nil {
		fmt.Fprintf(os.Stderr, "settings store: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("settings store %s: up to date\n", *configDB)
}

func migrateOne(dbPath, migrationsDir string) error {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", dbPath, err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("pinging %s: %w", dbPath, err)
	}

	if _, err := migrate.Run(db, os.DirFS(migrationsDir)); err != nil {
		return fmt.Errorf("applying migrations from %s: %w", migrationsDir, err)
	}
	return nil
}
