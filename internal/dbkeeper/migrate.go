package dbkeeper

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate"
	"github.com/golang-migrate/migrate/database/postgres"
	_ "github.com/golang-migrate/migrate/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Migrate applies the migrations found in dir to the database at dsn.
func Migrate(dsn, dir string, log Log) error {
	source, err := SourceURL(dir)
	if err != nil {
		return err
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse connection string: %w", err)
	}
	sqlDB := stdlib.OpenDB(*connConfig)
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("get migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Info("Database schema is up to date", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// SourceURL turns a migrations directory into a file:// source URL. A
// relative directory missing from the working directory is looked up two
// levels up, where it sits when tests run inside a package.
func SourceURL(dir string) (string, error) {
	if dir == "" {
		dir = "migrations"
	}
	if !filepath.IsAbs(dir) {
		if _, err := os.Stat(dir); err != nil {
			if alt := filepath.Join("..", "..", dir); statDir(alt) {
				dir = alt
			}
		}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if !statDir(abs) {
		return "", fmt.Errorf("migrations directory %s not found", abs)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func statDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
