package template

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Repository persists weekly templates.
type Repository interface {
	GetTemplate(ctx context.Context, providerID uuid.UUID) (*WeeklyTemplate, error)
	SaveTemplate(ctx context.Context, t *WeeklyTemplate) error
}

// MemoryRepository keeps templates in process.
type MemoryRepository struct {
	mu        sync.RWMutex
	templates map[uuid.UUID]*WeeklyTemplate
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{templates: make(map[uuid.UUID]*WeeklyTemplate)}
}

func (r *MemoryRepository) GetTemplate(_ context.Context, providerID uuid.UUID) (*WeeklyTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[providerID]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return t, nil
}

func (r *MemoryRepository) SaveTemplate(_ context.Context, t *WeeklyTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ProviderID] = t
	return nil
}
