package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// ErrNoTenant в токене нет идентификатора арендатора
var ErrNoTenant = errors.New("token has no tenant_id claim")

// KeycloakConfig конфигурация для Keycloak
type KeycloakConfig struct {
	ServerURL    string
	Realm        string
	ClientID     string
	ClientSecret string
	// SkipIssuerCheck нужен, когда Keycloak доступен сервису по другому адресу, чем клиентам
	SkipIssuerCheck bool
}

var _ interfaces.AuthPort = (*KeycloakClient)(nil)

// KeycloakClaims claims access токена Keycloak, нужные сервису
type KeycloakClaims struct {
	UserID      string `json:"sub"`
	Username    string `json:"preferred_username"`
	TenantID    string `json:"tenant_id"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	ResourceAccess map[string]struct {
		Roles []string `json:"roles"`
	} `json:"resource_access"`
}

// KeycloakClient проверяет токены пользователей и выдает сервисный HTTP клиент
type KeycloakClient struct {
	verifier    *oidc.IDTokenVerifier
	credentials *clientcredentials.Config
	principals  *cache.Cache
	clientID    string
}

// NewKeycloakClient создает новый клиент Keycloak; OIDC discovery выполняется сразу
func NewKeycloakClient(ctx context.Context, cfg KeycloakConfig) (*KeycloakClient, error) {
	providerURL := fmt.Sprintf("%s/realms/%s", strings.TrimRight(cfg.ServerURL, "/"), cfg.Realm)
	if cfg.SkipIssuerCheck {
		ctx = oidc.InsecureIssuerURLContext(ctx, providerURL)
	}

	provider, err := oidc.NewProvider(ctx, providerURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания OIDC провайдера: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        cfg.ClientID,
		SkipIssuerCheck: cfg.SkipIssuerCheck,
	})

	return &KeycloakClient{
		verifier: verifier,
		credentials: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     provider.Endpoint().TokenURL,
		},
		principals: cache.New(5*time.Minute, 10*time.Minute),
		clientID:   cfg.ClientID,
	}, nil
}

// tokenKey ключ кэша: сам токен в памяти не храним
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ValidateToken проверяет подпись, срок и аудиторию токена и возвращает claims
func (k *KeycloakClient) ValidateToken(ctx context.Context, tokenString string) (*KeycloakClaims, time.Time, error) {
	idToken, err := k.verifier.Verify(ctx, tokenString)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("ошибка верификации токена: %w", err)
	}

	var claims KeycloakClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, time.Time{}, fmt.Errorf("ошибка извлечения claims: %w", err)
	}
	return &claims, idToken.Expiry, nil
}

// principalFromClaims собирает пользователя: роли realm плюс роли клиента сервиса
func principalFromClaims(claims *KeycloakClaims, clientID string) (*interfaces.Principal, error) {
	if claims.TenantID == "" {
		return nil, ErrNoTenant
	}

	roles := append([]string{}, claims.RealmAccess.Roles...)
	if clientRoles, ok := claims.ResourceAccess[clientID]; ok {
		roles = append(roles, clientRoles.Roles...)
	}

	return &interfaces.Principal{
		UserID:   claims.UserID,
		TenantID: claims.TenantID,
		Username: claims.Username,
		Roles:    roles,
	}, nil
}

// Authenticate проверяет токен и возвращает пользователя с арендатором из claim tenant_id.
// Результат кэшируется до истечения токена.
func (k *KeycloakClient) Authenticate(ctx context.Context, token string) (*interfaces.Principal, error) {
	key := tokenKey(token)
	if cached, found := k.principals.Get(key); found {
		return cached.(*interfaces.Principal), nil
	}

	claims, expiry, err := k.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	principal, err := principalFromClaims(claims, k.clientID)
	if err != nil {
		return nil, err
	}

	if ttl := time.Until(expiry); ttl > 0 {
		k.principals.Set(key, principal, ttl)
	}
	return principal, nil
}

// ServiceClient возвращает HTTP клиент, получающий токен сервиса по client credentials.
// Используется для вызовов соседних сервисов (биллинг) от имени marketplace-service.
func (k *KeycloakClient) ServiceClient(ctx context.Context, timeout time.Duration) *http.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: timeout})
	client := k.credentials.Client(ctx)
	client.Timeout = timeout
	return client
}
