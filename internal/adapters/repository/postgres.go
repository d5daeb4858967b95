package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schemaSQL string

// Connect opens a pgx-backed sqlx pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// EnsureSchema creates the tables used by the engine when they are missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// pgCode extracts the SQLSTATE from either driver's error type.
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func dateValue(d *civil.Date) any {
	if d == nil {
		return nil
	}
	return d.In(time.UTC)
}

func dateFromNull(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := civil.DateOf(t.UTC())
	return &d
}

func datesToArray(dates []civil.Date) pq.StringArray {
	out := make(pq.StringArray, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.String())
	}
	return out
}

func datesFromArray(arr pq.StringArray) ([]civil.Date, error) {
	if len(arr) == 0 {
		return nil, nil
	}
	out := make([]civil.Date, 0, len(arr))
	for _, s := range arr {
		d, err := civil.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("bad freeze date %q: %w", s, err)
		}
		out = append(out, d)
	}
	return out, nil
}
