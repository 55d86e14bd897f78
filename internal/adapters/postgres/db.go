package postgres

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

func Connect(ctx context.Context, databaseURL string, maxConns int32) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(int(maxConns))
		sqlDB.SetMaxIdleConns(int(maxConns) / 2)
	}
	sqlDB.SetConnMaxIdleTime(15 * time.Minute)
	sqlDB.SetConnMaxLifetime(time.Hour)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// RunMigrations applies the embedded migrations in lexical order, recording
// each applied file in marketplace_migrations so restarts and rollouts are
// idempotent.
func RunMigrations(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).Exec(
		`CREATE TABLE IF NOT EXISTS marketplace_migrations (
			name          TEXT PRIMARY KEY,
			applied_at_ms BIGINT NOT NULL
		)`,
	).Error; err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied := make(map[string]bool)
	var names []string
	if err := db.WithContext(ctx).
		Raw(`SELECT name FROM marketplace_migrations`).
		Scan(&names).Error; err != nil {
		return fmt.Errorf("read applied migrations: %w", err)
	}
	for _, name := range names {
		applied[name] = true
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	pending := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if applied[entry.Name()] {
			continue
		}
		pending = append(pending, entry.Name())
	}
	sort.Strings(pending)

	for _, name := range pending {
		raw, readErr := migrationFS.ReadFile("migrations/" + name)
		if readErr != nil {
			return fmt.Errorf("read migration %s: %w", name, readErr)
		}
		migErr := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if execErr := tx.Exec(string(raw)).Error; execErr != nil {
				return execErr
			}
			return tx.Exec(
				`INSERT INTO marketplace_migrations (name, applied_at_ms) VALUES (?, ?)`,
				name, time.Now().UTC().UnixMilli(),
			).Error
		})
		if migErr != nil {
			return fmt.Errorf("exec migration %s: %w", name, migErr)
		}
	}
	return nil
}
