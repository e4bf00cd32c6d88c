package interfaces

import (
	"context"
)

// Principal описывает аутентифицированного пользователя
type Principal struct {
	UserID   string
	TenantID string
	Username string
	Roles    []string
}

// HasAnyRole проверяет наличие хотя бы одной роли из списка
func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, have := range p.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// AuthPort определяет интерфейс для работы с аутентификацией
type AuthPort interface {
	// Authenticate проверяет токен и возвращает пользователя с его арендатором
	Authenticate(ctx context.Context, token string) (*Principal, error)
}
