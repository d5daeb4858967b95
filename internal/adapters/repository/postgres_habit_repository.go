package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

var _ domain.HabitRepository = (*PostgresHabitRepository)(nil)

type PostgresHabitRepository struct {
	db *sqlx.DB
}

func NewPostgresHabitRepository(db *sqlx.DB) *PostgresHabitRepository {
	return &PostgresHabitRepository{db: db}
}

const habitColumns = `
    id, user_id, title,
    recurrence_kind, recurrence_weekday, recurrence_day, recurrence_month,
    reminder_hour, reminder_minute, reminder_enabled,
    last_completed_date, streak, highest_streak, current_gap_start_date,
    freeze_days_used, freeze_applied_dates, streak_broken_on,
    version, created_at, updated_at, deleted_at`

type habitRow struct {
	ID     string `db:"id"`
	UserID string `db:"user_id"`
	Title  string `db:"title"`

	RecurrenceKind    string `db:"recurrence_kind"`
	RecurrenceWeekday int    `db:"recurrence_weekday"`
	RecurrenceDay     int    `db:"recurrence_day"`
	RecurrenceMonth   int    `db:"recurrence_month"`

	ReminderHour    int  `db:"reminder_hour"`
	ReminderMinute  int  `db:"reminder_minute"`
	ReminderEnabled bool `db:"reminder_enabled"`

	LastCompletedDate   *time.Time     `db:"last_completed_date"`
	Streak              int            `db:"streak"`
	HighestStreak       int            `db:"highest_streak"`
	CurrentGapStartDate *time.Time     `db:"current_gap_start_date"`
	FreezeDaysUsed      int            `db:"freeze_days_used"`
	FreezeAppliedDates  pq.StringArray `db:"freeze_applied_dates"`
	StreakBrokenOn      *time.Time     `db:"streak_broken_on"`

	Version   int        `db:"version"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

func (r habitRow) toDomain() (*domain.Habit, error) {
	applied, err := datesFromArray(r.FreezeAppliedDates)
	if err != nil {
		return nil, err
	}

	return &domain.Habit{
		ID:     r.ID,
		UserID: r.UserID,
		Title:  r.Title,
		Recurrence: domain.Recurrence{
			Kind:       domain.RecurrenceKind(r.RecurrenceKind),
			Weekday:    time.Weekday(r.RecurrenceWeekday),
			DayOfMonth: r.RecurrenceDay,
			Month:      time.Month(r.RecurrenceMonth),
		},
		ReminderHour:                r.ReminderHour,
		ReminderMinute:              r.ReminderMinute,
		ReminderEnabled:             r.ReminderEnabled,
		LastCompletedDate:           dateFromNull(r.LastCompletedDate),
		Streak:                      r.Streak,
		HighestStreakAchieved:       r.HighestStreak,
		CurrentGapStartDate:         dateFromNull(r.CurrentGapStartDate),
		FreezeDaysUsedForCurrentGap: r.FreezeDaysUsed,
		FreezeAppliedDates:          applied,
		StreakBrokenOn:              dateFromNull(r.StreakBrokenOn),
		Version:                     r.Version,
		CreatedAt:                   r.CreatedAt,
		UpdatedAt:                   r.UpdatedAt,
		DeletedAt:                   r.DeletedAt,
	}, nil
}

func (r *PostgresHabitRepository) Create(ctx context.Context, h *domain.Habit) error {
	query := `
        INSERT INTO habits (` + habitColumns + `
        ) VALUES (
            $1, $2, $3,
            $4, $5, $6, $7,
            $8, $9, $10,
            $11, $12, $13, $14,
            $15, $16, $17,
            1, $18, $19, NULL
        )`

	_, err := r.db.ExecContext(ctx, query,
		h.ID, h.UserID, h.Title,
		string(h.Recurrence.Kind), int(h.Recurrence.Weekday), h.Recurrence.DayOfMonth, int(h.Recurrence.Month),
		h.ReminderHour, h.ReminderMinute, h.ReminderEnabled,
		dateValue(h.LastCompletedDate), h.Streak, h.HighestStreakAchieved, dateValue(h.CurrentGapStartDate),
		h.FreezeDaysUsedForCurrentGap, datesToArray(h.FreezeAppliedDates), dateValue(h.StreakBrokenOn),
		h.CreatedAt, h.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert habit: %w", err)
	}

	h.Version = 1
	return nil
}

func (r *PostgresHabitRepository) GetByID(ctx context.Context, id string) (*domain.Habit, error) {
	query := `SELECT ` + habitColumns + ` FROM habits WHERE id = $1 AND deleted_at IS NULL`

	var row habitRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrHabitNotFound
		}
		return nil, fmt.Errorf("database scan error: %w", err)
	}

	return row.toDomain()
}

func (r *PostgresHabitRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.Habit, error) {
	query := `
        SELECT ` + habitColumns + ` FROM habits
        WHERE user_id = $1 AND deleted_at IS NULL
        ORDER BY created_at ASC, id ASC`

	var rows []habitRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}

	habits := make([]*domain.Habit, 0, len(rows))
	for _, row := range rows {
		h, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("row decode error: %w", err)
		}
		habits = append(habits, h)
	}

	return habits, nil
}

func (r *PostgresHabitRepository) ListActiveUserIDs(ctx context.Context) ([]string, error) {
	var ids []string
	query := `SELECT DISTINCT user_id FROM habits WHERE deleted_at IS NULL ORDER BY user_id`
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	return ids, nil
}

func (r *PostgresHabitRepository) Update(ctx context.Context, h *domain.Habit) error {
	query := `
        UPDATE habits SET
            title=$1,
            recurrence_kind=$2, recurrence_weekday=$3, recurrence_day=$4, recurrence_month=$5,
            reminder_hour=$6, reminder_minute=$7, reminder_enabled=$8,
            updated_at=NOW(), version = version + 1
        WHERE id=$9 AND version=$10 AND deleted_at IS NULL
        RETURNING version, updated_at`

	row := r.db.QueryRowContext(ctx, query,
		h.Title,
		string(h.Recurrence.Kind), int(h.Recurrence.Weekday), h.Recurrence.DayOfMonth, int(h.Recurrence.Month),
		h.ReminderHour, h.ReminderMinute, h.ReminderEnabled,
		h.ID, h.Version,
	)

	return r.scanVersion(ctx, r.db, row, h)
}

// scanVersion distinguishes a missing habit from a stale version when an
// optimistic update matched no row.
func (r *PostgresHabitRepository) scanVersion(ctx context.Context, q sqlx.QueryerContext, row *sql.Row, h *domain.Habit) error {
	var newVersion int
	var newUpdatedAt time.Time

	err := row.Scan(&newVersion, &newUpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			existsQuery := `SELECT count(*) FROM habits WHERE id = $1 AND deleted_at IS NULL`
			var count int
			if checkErr := q.QueryRowxContext(ctx, existsQuery, h.ID).Scan(&count); checkErr != nil {
				return fmt.Errorf("existence check failed: %w", checkErr)
			}

			if count == 0 {
				return domain.ErrHabitNotFound
			}
			return domain.ErrHabitConflict
		}
		return fmt.Errorf("update query failed: %w", err)
	}

	h.Version = newVersion
	h.UpdatedAt = newUpdatedAt

	return nil
}

func (r *PostgresHabitRepository) Delete(ctx context.Context, id string) error {
	query := `
        UPDATE habits
        SET deleted_at = NOW(), updated_at = NOW(), version = version + 1
        WHERE id = $1 AND deleted_at IS NULL`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete query failed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrHabitNotFound
	}

	return nil
}
