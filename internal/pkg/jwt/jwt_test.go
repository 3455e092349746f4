package jwt_test

import (
	"errors"
	"testing"
	"time"

	"github.com/helpmaton/billing-api/internal/pkg/jwt"
)

func TestGenerateValidateRoundTrip(t *testing.T) {
	svc := jwt.NewService("test-secret", time.Minute)

	token, err := svc.GenerateToken("agent-runtime", jwt.RoleService)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Caller != "agent-runtime" {
		t.Fatalf("expected caller agent-runtime, got %s", claims.Caller)
	}
	if claims.Role != jwt.RoleService {
		t.Fatalf("expected role service, got %s", claims.Role)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := jwt.NewService("secret-a", time.Minute).GenerateToken("caller", jwt.RoleService)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	_, err = jwt.NewService("secret-b", time.Minute).ValidateToken(token)
	if !errors.Is(err, jwt.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc := jwt.NewService("test-secret", -time.Minute)

	token, err := svc.GenerateToken("caller", jwt.RoleAdmin)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("expired token must not validate")
	}
}
