package security

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/athebyme/gomarket-platform/marketplace-service/pkg/interfaces"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token expired")
	ErrNoTenant         = errors.New("token has no tenant_id claim")
	ErrSigningDisabled  = errors.New("jwt manager has no private key")
	errUnexpectedMethod = errors.New("unexpected signing method")
)

// clockSkew допустимое расхождение часов выпускающего и проверяющего
const clockSkew = 30 * time.Second

var _ interfaces.AuthPort = (*JWTManager)(nil)

// JWTManager проверяет RS256 токены, когда Keycloak не используется.
// Без приватного ключа работает только на проверку.
type JWTManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	expiration time.Duration
	issuer     string
	parser     *jwt.Parser
}

// Claims набор утверждений токена оператора маркетплейсов
type Claims struct {
	jwt.RegisteredClaims
	UserID   string   `json:"user_id"`
	TenantID string   `json:"tenant_id"`
	Roles    []string `json:"roles"`
}

// NewJWTManager создает менеджер; privateKeyPEM может быть пустым.
// Непустой issuer проверяется у входящих токенов.
func NewJWTManager(privateKeyPEM, publicKeyPEM []byte, expiration time.Duration, issuer string) (*JWTManager, error) {
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	m := &JWTManager{
		publicKey:  publicKey,
		expiration: expiration,
		issuer:     issuer,
	}

	if len(privateKeyPEM) > 0 {
		m.privateKey, err = jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

// Generate выпускает токен, например для сервисных вызовов и тестов
func (m *JWTManager) Generate(userID, tenantID string, roles []string) (string, error) {
	if m.privateKey == nil {
		return "", ErrSigningDisabled
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   userID,
		},
		UserID:   userID,
		TenantID: tenantID,
		Roles:    roles,
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.privateKey)
}

// Validate проверяет подпись, срок и издателя токена
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := m.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("%w: %v", errUnexpectedMethod, token.Header["alg"])
		}
		return m.publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate проверяет токен и возвращает пользователя с арендатором
func (m *JWTManager) Authenticate(_ context.Context, token string) (*interfaces.Principal, error) {
	claims, err := m.Validate(token)
	if err != nil {
		return nil, err
	}
	if claims.TenantID == "" {
		return nil, ErrNoTenant
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}

	return &interfaces.Principal{
		UserID:   userID,
		TenantID: claims.TenantID,
		Username: claims.Subject,
		Roles:    claims.Roles,
	}, nil
}
