package repositories

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chainbid/relay/internal/models"
)

// AuditRepo is the postgres-backed audit.Recorder.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Append(ctx context.Context, entry models.AuditEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO audit_log (id, type, author, meta)
		VALUES ($1, $2, $3, $4)
	`, entry.ID, entry.Type, entry.Author, meta)
	return err
}

func (r *AuditRepo) List(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, type, author, meta, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.Author, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			var m any
			if err := json.Unmarshal(meta, &m); err == nil {
				e.Meta = m
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
