package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openarchive/retention-service/internal/audit"
)

// AuditStore writes audit entries to the audit_log table
type AuditStore struct {
	pool *pgxpool.Pool
}

func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

var _ audit.Sink = (*AuditStore)(nil)

func (s *AuditStore) Record(ctx context.Context, entry audit.Entry) error {
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	at := entry.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_log (action, entity_type, entity_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.Action, entry.EntityType, nullableString(entry.EntityID), raw, at)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}
