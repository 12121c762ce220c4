package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Transactor runs fn inside a transaction. Repositories accept the *sql.Tx
// handed to fn and fall back to their own pool when it is nil.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

type SQLTransactor struct {
	DB *sql.DB
}

func (t SQLTransactor) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// NoTx calls fn with a nil transaction, for stores that are not SQL backed.
type NoTx struct{}

func (NoTx) WithinTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}
