package catalog

import (
	"context"
	"sync"

	apperrors "github.com/plantpulse/mes-backend/internal/core/errors"
	"github.com/plantpulse/mes-backend/internal/core/ports"
)

// StaticCatalog is the in-memory material catalog used when no database is
// configured. Unknown ids return ErrMaterialNotFound and the dispatcher
// falls back to a placeholder name, so running without seeds is fine.
type StaticCatalog struct {
	mu    sync.RWMutex
	names map[string]string
}

var _ ports.MaterialCatalog = (*StaticCatalog)(nil)

// DefaultMaterials mirrors the seed data shipped with the migrations.
func DefaultMaterials() map[string]string {
	return map[string]string{
		"MAT-001": "Steel Pipe",
		"MAT-002": "Aluminum Sheet",
		"MAT-003": "Copper Wire",
		"MAT-004": "Rubber Gasket",
		"MAT-005": "Hydraulic Fluid",
	}
}

func NewStaticCatalog(names map[string]string) *StaticCatalog {
	if names == nil {
		names = DefaultMaterials()
	}
	copied := make(map[string]string, len(names))
	for id, name := range names {
		copied[id] = name
	}
	return &StaticCatalog{names: copied}
}

func (c *StaticCatalog) MaterialName(_ context.Context, materialID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	name, ok := c.names[materialID]
	if !ok {
		return "", apperrors.ErrMaterialNotFound
	}
	return name, nil
}

// Register adds or renames a material.
func (c *StaticCatalog) Register(materialID, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[materialID] = name
}
