package auth

import (
	"errors"
	"testing"
	"time"
)

func testConfig() *JWTConfig {
	return &JWTConfig{
		Secret:   []byte("test-secret"),
		Issuer:   "wirecall",
		Audience: "wirecall-bridge",
		TTL:      time.Hour,
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := testConfig()

	token, err := GenerateToken(cfg, "operator-1", "Front desk")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := ValidateToken(cfg, token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != "operator-1" || claims.Name != "Front desk" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestValidateTokenRejects(t *testing.T) {
	cfg := testConfig()

	tests := []struct {
		name    string
		mint    *JWTConfig
		wantErr error
	}{
		{
			name:    "wrong issuer",
			mint:    &JWTConfig{Secret: cfg.Secret, Issuer: "other", Audience: cfg.Audience, TTL: time.Hour},
			wantErr: ErrInvalidIssuer,
		},
		{
			name:    "wrong audience",
			mint:    &JWTConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, Audience: "other", TTL: time.Hour},
			wantErr: ErrInvalidAudience,
		},
		{
			name: "wrong secret",
			mint: &JWTConfig{Secret: []byte("nope"), Issuer: cfg.Issuer, Audience: cfg.Audience, TTL: time.Hour},
		},
		{
			name: "expired",
			mint: &JWTConfig{Secret: cfg.Secret, Issuer: cfg.Issuer, Audience: cfg.Audience, TTL: -time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.mint, "operator-1", "")
			if err != nil {
				t.Fatalf("GenerateToken failed: %v", err)
			}
			_, err = ValidateToken(cfg, token)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateTokenGarbage(t *testing.T) {
	if _, err := ValidateToken(testConfig(), "not-a-token"); err == nil {
		t.Fatal("expected error for malformed token")
	}
}
