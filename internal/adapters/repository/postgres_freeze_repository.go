package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

var (
	_ domain.FreezeRepository = (*PostgresFreezeRepository)(nil)
	_ domain.StreakStore      = (*PostgresStreakStore)(nil)
)

const balanceColumns = `user_id, diamonds, freeze_days, version, updated_at`

type PostgresFreezeRepository struct {
	db *sqlx.DB
}

func NewPostgresFreezeRepository(db *sqlx.DB) *PostgresFreezeRepository {
	return &PostgresFreezeRepository{db: db}
}

func ensureBalance(ctx context.Context, ex sqlx.ExecerContext, userID string) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO freeze_balances (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("ensure balance: %w", err)
	}
	return nil
}

func (r *PostgresFreezeRepository) Get(ctx context.Context, userID string) (*domain.FreezeBalance, error) {
	if err := ensureBalance(ctx, r.db, userID); err != nil {
		return nil, err
	}

	var b domain.FreezeBalance
	query := `SELECT ` + balanceColumns + ` FROM freeze_balances WHERE user_id = $1`
	if err := r.db.GetContext(ctx, &b, query, userID); err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	return &b, nil
}

func (r *PostgresFreezeRepository) CompareAndSwap(ctx context.Context, b *domain.FreezeBalance) error {
	return casBalance(ctx, r.db, b)
}

func casBalance(ctx context.Context, q sqlx.QueryerContext, b *domain.FreezeBalance) error {
	query := `
        UPDATE freeze_balances
        SET diamonds = $1, freeze_days = $2, version = version + 1, updated_at = NOW()
        WHERE user_id = $3 AND version = $4
        RETURNING version, updated_at`

	var version int
	var updatedAt time.Time
	err := q.QueryRowxContext(ctx, query, b.Diamonds, b.FreezeDays, b.UserID, b.Version).Scan(&version, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrFreezeConflict
		}
		return fmt.Errorf("write balance: %w", err)
	}

	b.Version = version
	b.UpdatedAt = updatedAt
	return nil
}

// PostgresStreakStore commits a habit's streak fields and its owner's freeze
// balance in one transaction. The balance row is locked for the duration so
// concurrent recomputes of different habits of the same user serialise on
// it.
type PostgresStreakStore struct {
	db     *sqlx.DB
	habits *PostgresHabitRepository
}

func NewPostgresStreakStore(db *sqlx.DB) *PostgresStreakStore {
	return &PostgresStreakStore{db: db, habits: NewPostgresHabitRepository(db)}
}

func (s *PostgresStreakStore) CommitStreak(ctx context.Context, userID string, fn domain.StreakMutation) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin streak tx: %w", err)
	}
	defer tx.Rollback()

	if err := ensureBalance(ctx, tx, userID); err != nil {
		return err
	}

	var balance domain.FreezeBalance
	query := `SELECT ` + balanceColumns + ` FROM freeze_balances WHERE user_id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &balance, query, userID); err != nil {
		return fmt.Errorf("lock balance: %w", err)
	}

	working := balance.Clone()
	habit, err := fn(working)
	if err != nil || habit == nil {
		return err
	}

	update := `
        UPDATE habits SET
            last_completed_date=$1, streak=$2, highest_streak=$3,
            current_gap_start_date=$4, freeze_days_used=$5,
            freeze_applied_dates=$6, streak_broken_on=$7,
            updated_at=NOW(), version = version + 1
        WHERE id=$8 AND version=$9 AND deleted_at IS NULL
        RETURNING version, updated_at`

	row := tx.QueryRowContext(ctx, update,
		dateValue(habit.LastCompletedDate), habit.Streak, habit.HighestStreakAchieved,
		dateValue(habit.CurrentGapStartDate), habit.FreezeDaysUsedForCurrentGap,
		datesToArray(habit.FreezeAppliedDates), dateValue(habit.StreakBrokenOn),
		habit.ID, habit.Version,
	)
	if err := s.habits.scanVersion(ctx, tx, row, habit); err != nil {
		return err
	}

	if *working != balance {
		if err := casBalance(ctx, tx, working); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit streak tx: %w", err)
	}
	return nil
}
