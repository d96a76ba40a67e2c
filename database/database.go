// Package database is the Postgres implementation of the snapshot cache
// port. One row per synchronized group, one row per member; only
// fingerprints are stored, never raw attribute values.
package database

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

type Database struct {
	dsn            string
	ConnectionPool *pgxpool.Pool
}

func NewDatabase(dsn string) *Database {
	return &Database{
		dsn: dsn,
	}
}

// Connect adds a connection pool for the configured DSN.
func (db *Database) Connect(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, db.dsn)
	if err != nil {
		return errors.Wrap(err, "unable to connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return errors.Wrap(err, "unable to ping database")
	}
	db.ConnectionPool = pool
	return nil
}

func (db *Database) Close() {
	if db.ConnectionPool != nil {
		db.ConnectionPool.Close()
	}
}

func rollbackOrCommit(ctx context.Context, tx pgx.Tx, err *error) {
	if *err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			*err = errors.WithSecondaryError(*err, rbErr)
		}
		return
	}
	if cmErr := tx.Commit(ctx); cmErr != nil {
		*err = errors.Wrap(cmErr, "commit failed")
	}
}

// ResetDatabase drops and recreates the sync database. Dev convenience until
// there is a real migration story.
func ResetDatabase(ctx context.Context, managementDsn string, syncDsn string, dbName string) error {
	managementPool, err := pgxpool.New(ctx, managementDsn)
	if err != nil {
		return errors.Wrap(err, "unable to connect to management database")
	}
	defer managementPool.Close()

	if _, err = managementPool.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", dbName)); err != nil {
		return errors.Wrapf(err, "failed to drop database %s", dbName)
	}
	if _, err = managementPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", dbName)); err != nil {
		return errors.Wrapf(err, "failed to create database %s", dbName)
	}

	syncPool, err := pgxpool.New(ctx, syncDsn)
	if err != nil {
		return errors.Wrap(err, "unable to connect to sync database")
	}
	defer syncPool.Close()

	if _, err = syncPool.Exec(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "failed to create tables")
	}
	return nil
}
