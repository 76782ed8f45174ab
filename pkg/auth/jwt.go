// Package auth выпускает и проверяет JWT для API брокера.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"broker/pkg/config"
)

// Роли
const (
	RoleUser  = "user"
	RoleAdmin = "admin" // видит и удаляет расчёты всех владельцев
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Config конфигурация JWT
type Config struct {
	SecretKey string
	TokenTTL  time.Duration
	Issuer    string
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		SecretKey: "change-me-in-production",
		TokenTTL:  24 * time.Hour,
		Issuer:    "broker-svc",
	}
}

// FromConfig переводит секцию auth
func FromConfig(cfg config.AuthConfig) *Config {
	c := DefaultConfig()
	if cfg.JWTSecret != "" {
		c.SecretKey = cfg.JWTSecret
	}
	if cfg.TokenTTL > 0 {
		c.TokenTTL = cfg.TokenTTL
	}
	if cfg.Issuer != "" {
		c.Issuer = cfg.Issuer
	}
	return c
}

// Claims кастомные claims для JWT
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin true для роли admin
func (c *Claims) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

// Manager выпускает и проверяет токены
type Manager struct {
	config *Config
	now    func() time.Time
}

// NewManager создаёт новый менеджер JWT
func NewManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Manager{config: cfg, now: time.Now}
}

// Issue выпускает токен для субъекта
func (m *Manager) Issue(subject, role string) (string, error) {
	return m.IssueWithTTL(subject, role, m.config.TokenTTL)
}

// IssueWithTTL выпускает токен с заданным временем жизни
func (m *Manager) IssueWithTTL(subject, role string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if role == "" {
		role = RoleUser
	}

	now := m.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(m.config.SecretKey))
}

// Validate проверяет подпись, срок и издателя токена
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.SecretKey), nil
	},
		jwt.WithIssuer(m.config.Issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ParseBearer извлекает токен из заголовка Authorization
func ParseBearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

type claimsKey struct{}

// WithClaims кладёт claims в контекст
func WithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext достаёт claims, nil для анонимного вызова
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// SubjectFromContext субъект токена или пустая строка
func SubjectFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}

// OwnerScope владелец, которым ограничены выборки: пусто для admin и анонимных вызовов
func OwnerScope(ctx context.Context) string {
	c := ClaimsFromContext(ctx)
	if c == nil || c.IsAdmin() {
		return ""
	}
	return c.Subject
}
