package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jmoiron/sqlx"

	"github.com/comitanigiacomo/kanso-streak-engine/internal/core/domain"
)

var _ domain.CompletionRepository = (*PostgresCompletionRepository)(nil)

type PostgresCompletionRepository struct {
	db *sqlx.DB
}

func NewPostgresCompletionRepository(db *sqlx.DB) *PostgresCompletionRepository {
	return &PostgresCompletionRepository{db: db}
}

type completionRow struct {
	ID             string    `db:"id"`
	HabitID        string    `db:"habit_id"`
	UserID         string    `db:"user_id"`
	CompletionDate time.Time `db:"completion_date"`
	CompletedAt    time.Time `db:"completed_at"`
}

func (r completionRow) toDomain() *domain.CompletionRecord {
	return &domain.CompletionRecord{
		ID:          r.ID,
		HabitID:     r.HabitID,
		UserID:      r.UserID,
		Date:        civil.DateOf(r.CompletionDate.UTC()),
		CompletedAt: r.CompletedAt,
	}
}

func (r *PostgresCompletionRepository) Create(ctx context.Context, rec *domain.CompletionRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	query := `
        INSERT INTO habit_completions (id, habit_id, user_id, completion_date, completed_at)
        VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, rec.ID, rec.HabitID, rec.UserID, rec.Date.In(time.UTC), rec.CompletedAt)
	if err != nil {
		switch pgCode(err) {
		case codeUniqueViolation:
			return domain.ErrCompletionExists
		case codeForeignKeyViolation:
			return domain.ErrHabitNotFound
		}
		return fmt.Errorf("failed to insert completion: %w", err)
	}
	return nil
}

func (r *PostgresCompletionRepository) Delete(ctx context.Context, habitID string, date civil.Date) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM habit_completions WHERE habit_id = $1 AND completion_date = $2`,
		habitID, date.In(time.UTC),
	)
	if err != nil {
		return fmt.Errorf("delete completion failed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrCompletionNotFound
	}
	return nil
}

func (r *PostgresCompletionRepository) ListByHabitID(ctx context.Context, habitID string) ([]*domain.CompletionRecord, error) {
	return r.list(ctx, `
        SELECT id, habit_id, user_id, completion_date, completed_at
        FROM habit_completions
        WHERE habit_id = $1
        ORDER BY completion_date ASC`, habitID)
}

func (r *PostgresCompletionRepository) ListByUserID(ctx context.Context, userID string) ([]*domain.CompletionRecord, error) {
	return r.list(ctx, `
        SELECT id, habit_id, user_id, completion_date, completed_at
        FROM habit_completions
        WHERE user_id = $1
        ORDER BY completion_date ASC, habit_id ASC`, userID)
}

func (r *PostgresCompletionRepository) list(ctx context.Context, query string, arg string) ([]*domain.CompletionRecord, error) {
	var rows []completionRow
	if err := r.db.SelectContext(ctx, &rows, query, arg); err != nil {
		return nil, errors.Join(errors.New("completion query failed"), err)
	}

	records := make([]*domain.CompletionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}
	return records, nil
}
