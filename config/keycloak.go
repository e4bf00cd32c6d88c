package config

import (
	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/auth"
)

// KeycloakConfig настройки Keycloak: проверка токенов при security.authMode=keycloak
// и сервисный клиент биллинга
type KeycloakConfig struct {
	ServerURL       string
	Realm           string
	ClientID        string
	ClientSecret    string
	SkipIssuerCheck bool
}

// GetKeycloakConfig возвращает конфигурацию для auth.KeycloakClient
func (k *KeycloakConfig) GetKeycloakConfig() auth.KeycloakConfig {
	return auth.KeycloakConfig(*k)
}
