package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

var lifecycleColumns = []string{"document_id", "from_state", "to_state", "agent", "notes", "created_at"}

type lifecycleRepo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewLifecycleRepo creates a new SQL-backed LifecycleRepository.
func NewLifecycleRepo(db *sqlx.DB) port.LifecycleRepository {
	return &lifecycleRepo{db: db, sb: builder(db)}
}

// Append inserts entries in one statement, so a batch is stored whole or not at all.
func (r *lifecycleRepo) Append(ctx context.Context, entries ...domain.LifecycleEntry) error {
	if len(entries) == 0 {
		return nil
	}
	q := r.sb.Insert("lifecycle_entries").Columns(lifecycleColumns...)
	for _, e := range entries {
		q = q.Values(e.DocumentID, e.FromState, e.ToState, e.Agent, e.Notes, e.Timestamp.UTC())
	}
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("lifecycleRepo.Append build: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("lifecycleRepo.Append: %w", err)
	}
	return nil
}

func (r *lifecycleRepo) ListByDocument(ctx context.Context, documentID string) (domain.LifecycleLog, error) {
	query, args, err := r.sb.Select(lifecycleColumns...).
		From("lifecycle_entries").
		Where(sq.Eq{"document_id": documentID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("lifecycleRepo.ListByDocument build: %w", err)
	}

	var log domain.LifecycleLog
	if err := r.db.SelectContext(ctx, &log, query, args...); err != nil {
		return nil, fmt.Errorf("lifecycleRepo.ListByDocument: %w", err)
	}
	return log, nil
}

func (r *lifecycleRepo) List(ctx context.Context, filter port.LifecycleFilter, offset, limit int) (domain.LifecycleLog, int, error) {
	where := sq.And{}
	if filter.DocumentID != "" {
		where = append(where, sq.Eq{"document_id": filter.DocumentID})
	}
	if filter.ToState != "" {
		where = append(where, sq.Eq{"to_state": filter.ToState})
	}
	if filter.Agent != "" {
		where = append(where, sq.Eq{"agent": filter.Agent})
	}
	if !filter.Since.IsZero() {
		where = append(where, sq.GtOrEq{"created_at": filter.Since.UTC()})
	}

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").From("lifecycle_entries").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("lifecycleRepo.List build count: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("lifecycleRepo.List count: %w", err)
	}

	query, args, err := r.sb.Select(lifecycleColumns...).
		From("lifecycle_entries").
		Where(where).
		OrderBy("id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("lifecycleRepo.List build: %w", err)
	}
	var log domain.LifecycleLog
	if err := r.db.SelectContext(ctx, &log, query, args...); err != nil {
		return nil, 0, fmt.Errorf("lifecycleRepo.List: %w", err)
	}
	return log, total, nil
}
