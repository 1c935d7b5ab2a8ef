// Package postgres implements snapshot persistence on PostgreSQL.
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"ratewatch/internal/domain"
	"ratewatch/pkg/errors"
)

type SnapshotRepository struct {
	db *sqlx.DB
}

func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

func (r *SnapshotRepository) Create(ctx context.Context, rec *domain.SnapshotRecord) error {
	query := `
		INSERT INTO rate_snapshots (id, base_code, payload, source, fetched_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.BaseCode, rec.Payload, rec.Source, rec.FetchedAt,
	)

	return errors.Wrap(err, "failed to record snapshot")
}

func (r *SnapshotRepository) List(ctx context.Context, limit int) ([]*domain.SnapshotRecord, error) {
	var records []*domain.SnapshotRecord
	query := `
		SELECT id, base_code, payload, source, fetched_at
		FROM rate_snapshots
		ORDER BY fetched_at DESC
		LIMIT $1
	`

	err := r.db.SelectContext(ctx, &records, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list snapshots")
	}

	return records, nil
}
