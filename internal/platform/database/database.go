// Package database wraps a pgx connection pool with the transaction and
// error-classification helpers the repositories share.
package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pesio-ai/be-compliance-tasks/internal/platform/errors"
)

// Config holds pool settings.
type Config struct {
	DSN         string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
}

// Querier is the subset of pgxpool.Pool the repositories use. pgxmock pools
// satisfy it as well.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB is the handle passed to repositories.
type DB struct {
	Querier
	pool *pgxpool.Pool
}

// New opens a pool and verifies connectivity.
func New(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnTime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnTime
	}
	if cfg.MaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	}
	if cfg.HealthCheck > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheck
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Querier: pool, pool: pool}, nil
}

// Wrap builds a DB around an existing Querier.
func Wrap(q Querier) *DB {
	return &DB{Querier: q}
}

// Close releases the pool, if one is owned.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Ping checks connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if db.pool == nil {
		return nil
	}
	return db.pool.Ping(ctx)
}

// InTransaction runs fn inside a transaction, committing on success and
// rolling back on error or panic.
func (db *DB) InTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return errors.Unavailable(err, "failed to begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return errors.Unavailable(err, "failed to commit transaction")
	}
	return nil
}

// Postgres error codes the repositories react to.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgInvalidText         = "22P02"
)

// Classify converts a driver error into an AppError. Constraint violations
// keep their meaning. A malformed id never matches a row, so it is NOT_FOUND.
// Connection, serialization, resource and shutdown classes, and anything that
// is not a server-side error, are transient upstream failures.
func Classify(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return errors.Wrap(err, errors.ErrCodeConflict, message)
		case pgForeignKeyViolation:
			return errors.Wrap(err, errors.ErrCodeNotFound, message)
		case pgCheckViolation:
			return errors.Wrap(err, errors.ErrCodeValidation, message)
		case pgInvalidText:
			return errors.Wrap(err, errors.ErrCodeNotFound, message)
		}
		if len(pgErr.Code) == 5 {
			switch pgErr.Code[:2] {
			case "08", "40", "53", "57":
				return errors.Unavailable(err, message)
			}
		}
		return errors.Wrap(err, errors.ErrCodeInternal, message)
	}
	return errors.Unavailable(err, message)
}

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return stderrors.Is(err, pgx.ErrNoRows)
}
