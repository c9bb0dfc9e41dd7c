package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminRole es el valor de claim requerido para la API de operaciones.
const AdminRole = "admin"

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
	ErrNotAdmin   = errors.New("jwt lacks admin role")
)

// AdminClaims son los claims del token de operador.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminTokenService emite y valida tokens HS256 de administrador.
type AdminTokenService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewAdminTokenService(secret string) *AdminTokenService {
	return &AdminTokenService{
		secret: []byte(secret),
		issuer: "team-roles",
		now:    time.Now,
	}
}

// Enabled indica si hay secreto configurado.
func (s *AdminTokenService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

// Issue firma un token de administrador para subject.
func (s *AdminTokenService) Issue(subject string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrJWTInvalid
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := s.now()
	claims := AdminClaims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Parse valida firma, expiracion, issuer y rol.
func (s *AdminTokenService) Parse(raw string) (AdminClaims, error) {
	if !s.Enabled() || strings.TrimSpace(raw) == "" {
		return AdminClaims{}, ErrJWTInvalid
	}
	var claims AdminClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AdminClaims{}, ErrJWTExpired
		}
		return AdminClaims{}, ErrJWTInvalid
	}
	if claims.Role != AdminRole {
		return AdminClaims{}, ErrNotAdmin
	}
	return claims, nil
}
