package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openarchive/retention-service/internal/lifecycle"
	"github.com/openarchive/retention-service/internal/retention"
)

// DocumentStore is the PostgreSQL lifecycle.Store over the documents and
// destruction_approvals tables.
type DocumentStore struct {
	pool *pgxpool.Pool
}

func NewDocumentStore(pool *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{pool: pool}
}

var _ lifecycle.Store = (*DocumentStore)(nil)

const documentColumns = `id, title, status, retention_category, creation_date`

func (s *DocumentStore) ListCandidates(ctx context.Context) ([]retention.Document, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE status = ANY($1)
		ORDER BY id
	`, statusNames(retention.CandidateStatuses()))
	if err != nil {
		return nil, fmt.Errorf("failed to list lifecycle candidates: %w", err)
	}
	defer rows.Close()

	docs := []retention.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*retention.Document, error) {
	d, err := scanDocument(s.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, lifecycle.ErrDocumentNotFound
	}
	return d, err
}

func (s *DocumentStore) TransitionStatus(ctx context.Context, ids []string, from []retention.DocumentStatus, status retention.DocumentStatus, now time.Time) (int64, error) {
	if len(ids) == 0 || len(from) == 0 {
		return 0, nil
	}
	result, err := s.pool.Exec(ctx, `
		UPDATE documents SET status = $2, updated_at = $3
		WHERE id = ANY($1) AND status = ANY($4)
	`, ids, string(status), now, statusNames(from))
	if err != nil {
		return 0, fmt.Errorf("failed to update document status: %w", MapError(err))
	}
	return result.RowsAffected(), nil
}

func (s *DocumentStore) CountByStatus(ctx context.Context) (map[retention.DocumentStatus]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	defer rows.Close()

	out := make(map[retention.DocumentStatus]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[retention.DocumentStatus(status)] = n
	}
	return out, rows.Err()
}

func (s *DocumentStore) CreateApproval(ctx context.Context, a *lifecycle.Approval) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	result, err := s.pool.Exec(ctx, `
		INSERT INTO destruction_approvals
			(id, document_id, document_title, retention_category, creation_date, retention_end_date, reason, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (document_id) WHERE status = 'pending' DO NOTHING
	`, a.ID, a.DocumentID, a.DocumentTitle, nullableString(string(a.RetentionCategory)), a.CreationDate,
		a.RetentionEndDate, a.Reason, string(a.Status), a.RequestedAt)
	if err != nil {
		return false, fmt.Errorf("failed to create destruction approval: %w", MapError(err))
	}
	return result.RowsAffected() == 1, nil
}

const approvalColumns = `id, document_id, document_title, retention_category, creation_date, retention_end_date,
	reason, status, requested_at, resolved_at, resolved_by`

func (s *DocumentStore) ListApprovals(ctx context.Context, status lifecycle.ApprovalStatus) ([]lifecycle.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM destruction_approvals`
	var args []any
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY requested_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	defer rows.Close()

	out := []lifecycle.Approval{}
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *DocumentStore) ResolveApproval(ctx context.Context, id string, status lifecycle.ApprovalStatus, by string, now time.Time) (*lifecycle.Approval, error) {
	a, err := scanApproval(s.pool.QueryRow(ctx, `
		UPDATE destruction_approvals
		SET status = $2, resolved_by = $3, resolved_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING `+approvalColumns, id, string(status), by, now))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to resolve approval: %w", err)
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM destruction_approvals WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, lifecycle.ErrApprovalResolved
	}
	return nil, lifecycle.ErrApprovalNotFound
}

// ApproveAndDestroy locks the approval and its document, then resolves the
// approval and marks the document DESTROY in one transaction.
func (s *DocumentStore) ApproveAndDestroy(ctx context.Context, id, by string, now time.Time) (*lifecycle.Approval, error) {
	var approval *lifecycle.Approval
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		a, err := scanApproval(tx.QueryRow(ctx, `
			SELECT `+approvalColumns+` FROM destruction_approvals WHERE id = $1 FOR UPDATE
		`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return lifecycle.ErrApprovalNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load approval: %w", err)
		}
		if a.Status != lifecycle.ApprovalPending {
			return lifecycle.ErrApprovalResolved
		}

		doc, err := scanDocument(tx.QueryRow(ctx, `
			SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE
		`, a.DocumentID))
		if errors.Is(err, pgx.ErrNoRows) {
			return lifecycle.ErrDocumentNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load document: %w", err)
		}
		if err := lifecycle.CheckDestroyable(*doc); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE documents SET status = $2, updated_at = $3 WHERE id = $1
		`, doc.ID, string(retention.StatusDestroy), now); err != nil {
			return fmt.Errorf("failed to update document status: %w", MapError(err))
		}

		approval, err = scanApproval(tx.QueryRow(ctx, `
			UPDATE destruction_approvals
			SET status = $2, resolved_by = $3, resolved_at = $4
			WHERE id = $1
			RETURNING `+approvalColumns, id, string(lifecycle.ApprovalApproved), by, now))
		if err != nil {
			return fmt.Errorf("failed to resolve approval: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return approval, nil
}

func scanDocument(row pgx.Row) (*retention.Document, error) {
	var (
		d        retention.Document
		status   string
		category *string
	)
	if err := row.Scan(&d.ID, &d.Title, &status, &category, &d.CreationDate); err != nil {
		return nil, err
	}
	d.Status = retention.DocumentStatus(status)
	if category != nil {
		d.RetentionCategory = retention.Category(*category)
	}
	return &d, nil
}

func scanApproval(row pgx.Row) (*lifecycle.Approval, error) {
	var (
		a        lifecycle.Approval
		category *string
		status   string
	)
	err := row.Scan(&a.ID, &a.DocumentID, &a.DocumentTitle, &category, &a.CreationDate, &a.RetentionEndDate,
		&a.Reason, &status, &a.RequestedAt, &a.ResolvedAt, &a.ResolvedBy)
	if err != nil {
		return nil, err
	}
	if category != nil {
		a.RetentionCategory = retention.Category(*category)
	}
	a.Status = lifecycle.ApprovalStatus(status)
	return &a, nil
}

func statusNames(statuses []retention.DocumentStatus) []string {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	return names
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
