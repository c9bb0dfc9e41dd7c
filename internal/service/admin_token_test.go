package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestAdminToken_IssueAndParse(t *testing.T) {
	svc := NewAdminTokenService("secret")
	raw, err := svc.Issue("ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := svc.Parse(raw)
	if err != nil {
		t.Fatalf("expected valid token, got %v", err)
	}
	if claims.Subject != "ops@example.com" || claims.Role != AdminRole {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestAdminToken_Expired(t *testing.T) {
	svc := NewAdminTokenService("secret")
	base := time.Now()
	svc.now = func() time.Time { return base.Add(-2 * time.Hour) }
	raw, err := svc.Issue("ops", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	svc.now = func() time.Time { return base }
	if _, err := svc.Parse(raw); !errors.Is(err, ErrJWTExpired) {
		t.Fatalf("expected ErrJWTExpired, got %v", err)
	}
}

func TestAdminToken_RejectsWrongSecretAndRole(t *testing.T) {
	svc := NewAdminTokenService("secret")
	raw, _ := NewAdminTokenService("other").Issue("ops", time.Hour)
	if _, err := svc.Parse(raw); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid, got %v", err)
	}

	claims := AdminClaims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "team-roles",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	viewer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.Parse(viewer); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
}

func TestAdminToken_Disabled(t *testing.T) {
	svc := NewAdminTokenService("")
	if svc.Enabled() {
		t.Fatalf("expected disabled service")
	}
	if _, err := svc.Issue("ops", time.Hour); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid, got %v", err)
	}
	if _, err := svc.Parse("anything"); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid, got %v", err)
	}
}
