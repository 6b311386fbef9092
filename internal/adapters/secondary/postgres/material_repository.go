package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/plantpulse/mes-backend/internal/core/errors"
	"github.com/plantpulse/mes-backend/internal/core/ports"
)

// MaterialRepository resolves material display names from the materials
// table. It intentionally exposes nothing else: stock quantities on events
// are client-reported, not authoritative, and are never persisted here.
type MaterialRepository struct {
	pool *pgxpool.Pool
}

var _ ports.MaterialCatalog = (*MaterialRepository)(nil)

func NewMaterialRepository(pool *pgxpool.Pool) *MaterialRepository {
	return &MaterialRepository{pool: pool}
}

func (r *MaterialRepository) MaterialName(ctx context.Context, materialID string) (string, error) {
	const query = `
SELECT name
FROM materials
WHERE material_id = $1`

	var name string
	err := r.pool.QueryRow(ctx, query, materialID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperrors.ErrMaterialNotFound
		}
		return "", err
	}

	return name, nil
}

// Upsert registers or renames a material. Used by migrations seeding and
// tests; the realtime path is read-only.
func (r *MaterialRepository) Upsert(ctx context.Context, materialID, name string) error {
	const query = `
INSERT INTO materials (material_id, name)
VALUES ($1, $2)
ON CONFLICT (material_id) DO UPDATE SET name = EXCLUDED.name`

	_, err := r.pool.Exec(ctx, query, materialID, name)
	return err
}
