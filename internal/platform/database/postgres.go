package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// DB backs every pg repository and the SQLTransactor.
var DB *sql.DB

//go:embed schema.sql
var schema string

const (
	maxConns    = 25
	connMaxLife = 5 * time.Minute
	pingTimeout = 5 * time.Second
)

func Connect(connStr string) {
	var err error
	if DB, err = sql.Open("pgx", connStr); err != nil {
		slog.Error("could not open database", "error", err)
		os.Exit(1)
	}
	DB.SetMaxOpenConns(maxConns)
	DB.SetMaxIdleConns(maxConns)
	DB.SetConnMaxLifetime(connMaxLife)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err = DB.PingContext(ctx); err != nil {
		slog.Error("could not connect to database", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to postgres")
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("database.Migrate: %w", err)
	}
	return nil
}

func Close() {
	if DB == nil {
		return
	}
	if err := DB.Close(); err != nil {
		slog.Warn("closing database", "error", err)
		return
	}
	slog.Info("database connection closed")
}
