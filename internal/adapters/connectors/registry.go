package connectors

import (
	"fmt"
	"sync"

	"github.com/athebyme/gomarket-platform/marketplace-service/internal/domain/models"
)

// Registry сопоставляет площадку ее коннектору
type Registry struct {
	mu         sync.RWMutex
	connectors map[models.Platform]Connector
}

// NewRegistry создает реестр из набора коннекторов
func NewRegistry(list ...Connector) *Registry {
	r := &Registry{connectors: make(map[models.Platform]Connector, len(list))}
	for _, c := range list {
		r.Register(c)
	}
	return r
}

// Register добавляет или заменяет коннектор площадки
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Platform()] = c
}

// Get возвращает коннектор площадки
func (r *Registry) Get(platform models.Platform) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	return c, nil
}

// Platforms список зарегистрированных площадок
func (r *Registry) Platforms() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Platform, 0, len(r.connectors))
	for p := range r.connectors {
		out = append(out, p)
	}
	return out
}
