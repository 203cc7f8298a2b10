package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"materialflow/internal/domain"
	"materialflow/internal/port"
)

var resultColumns = []string{
	"document_id", "group_id", "request_id", "sender", "subject", "file_name", "language",
	"document_type", "layout_signature", "state", "outcome", "confidence", "retry_count",
	"fallback_applied", "model", "error_kind", "error_summary", "archive_uri",
	"products", "processing_summary", "received_at", "completed_at",
}

// resultRow carries the JSON columns next to the flat result fields.
type resultRow struct {
	domain.Result
	ProductsJSON string         `db:"products"`
	SummaryJSON  sql.NullString `db:"processing_summary"`
}

func (row *resultRow) toDomain() (*domain.Result, error) {
	r := row.Result
	if err := json.Unmarshal([]byte(row.ProductsJSON), &r.Products); err != nil {
		return nil, fmt.Errorf("decoding products of %s: %w", r.DocumentID, err)
	}
	if row.SummaryJSON.Valid && row.SummaryJSON.String != "" {
		r.ProcessingSummary = json.RawMessage(row.SummaryJSON.String)
	}
	r.ReceivedAt = r.ReceivedAt.UTC()
	r.CompletedAt = r.CompletedAt.UTC()
	return &r, nil
}

type resultRepo struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewResultRepo creates a new SQL-backed ResultRepository.
func NewResultRepo(db *sqlx.DB) port.ResultRepository {
	return &resultRepo{db: db, sb: builder(db)}
}

// Save inserts the result or replaces the stored one for the same document.
func (r *resultRepo) Save(ctx context.Context, res *domain.Result) error {
	products := res.Products
	if products == nil {
		products = []domain.ProductResult{}
	}
	productsJSON, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("resultRepo.Save encode products: %w", err)
	}
	var summary interface{}
	if len(res.ProcessingSummary) > 0 {
		summary = string(res.ProcessingSummary)
	}

	updates := make([]string, 0, len(resultColumns)-1)
	for _, c := range resultColumns[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}

	query, args, err := r.sb.Insert("results").
		Columns(resultColumns...).
		Values(
			res.DocumentID, res.GroupID, res.RequestID, res.Sender, res.Subject, res.FileName, res.Language,
			res.DocumentType, res.LayoutSignature, res.State, res.Outcome, res.Confidence, res.RetryCount,
			res.FallbackApplied, res.Model, res.ErrorKind, res.ErrorSummary, res.ArchiveURI,
			string(productsJSON), summary, res.ReceivedAt.UTC(), res.CompletedAt.UTC(),
		).
		Suffix("ON CONFLICT (document_id) DO UPDATE SET " + strings.Join(updates, ", ")).
		ToSql()
	if err != nil {
		return fmt.Errorf("resultRepo.Save build: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("resultRepo.Save: %w", err)
	}
	return nil
}

func (r *resultRepo) GetByDocumentID(ctx context.Context, documentID string) (*domain.Result, error) {
	query, args, err := r.sb.Select(resultColumns...).
		From("results").
		Where(sq.Eq{"document_id": documentID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("resultRepo.GetByDocumentID build: %w", err)
	}

	var row resultRow
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, fmt.Errorf("resultRepo.GetByDocumentID: %w", err)
	}
	return row.toDomain()
}

func (r *resultRepo) List(ctx context.Context, filter port.ResultFilter, offset, limit int) ([]domain.Result, int, error) {
	where := sq.And{}
	if filter.GroupID != "" {
		where = append(where, sq.Eq{"group_id": filter.GroupID})
	}
	if filter.Outcome != "" {
		where = append(where, sq.Eq{"outcome": filter.Outcome})
	}
	if filter.Sender != "" {
		where = append(where, sq.Eq{"sender": filter.Sender})
	}

	countQuery, countArgs, err := r.sb.Select("COUNT(*)").From("results").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("resultRepo.List build count: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("resultRepo.List count: %w", err)
	}

	query, args, err := r.sb.Select(resultColumns...).
		From("results").
		Where(where).
		OrderBy("completed_at DESC", "document_id ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("resultRepo.List build: %w", err)
	}
	var rows []resultRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("resultRepo.List: %w", err)
	}

	results := make([]domain.Result, 0, len(rows))
	for i := range rows {
		res, err := rows[i].toDomain()
		if err != nil {
			return nil, 0, err
		}
		results = append(results, *res)
	}
	return results, total, nil
}

func (r *resultRepo) SaveFeedback(ctx context.Context, fb *domain.Feedback) error {
	query, args, err := r.sb.Insert("feedback").
		Columns("document_id", "verdict", "comment", "created_at").
		Values(fb.DocumentID, fb.Verdict, fb.Comment, fb.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("resultRepo.SaveFeedback build: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("resultRepo.SaveFeedback: %w", err)
	}
	return nil
}
