package httpapi

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"kasirpos/backend/internal/domain"
)

func TestParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("test-secret-key", "kasirpos-idp", "482913")
	token, err := auth.sign(domain.Actor{Subject: "u-1", Name: "Kasir A", Role: domain.RoleCashier}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.Subject != "u-1" || actor.Name != "Kasir A" || actor.Role != domain.RoleCashier {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsExpiredAndForeignTokens(t *testing.T) {
	auth := NewAuthManager("test-secret-key", "kasirpos-idp", "482913")

	expired, err := auth.sign(domain.Actor{Subject: "u-1", Role: domain.RoleAdmin}, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	other := NewAuthManager("another-secret", "kasirpos-idp", "482913")
	foreign, err := other.sign(domain.Actor{Subject: "u-1", Role: domain.RoleAdmin}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(foreign); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}

	wrongIssuer := NewAuthManager("test-secret-key", "someone-else", "482913")
	token, err := wrongIssuer.sign(domain.Actor{Subject: "u-1", Role: domain.RoleAdmin}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected token from another issuer to be rejected")
	}
}

func TestParseTokenRejectsUnknownRoleAndMissingSubject(t *testing.T) {
	auth := NewAuthManager("test-secret-key", "", "482913")

	token, err := auth.sign(domain.Actor{Subject: "u-1", Role: "owner"}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}

	token, err = auth.sign(domain.Actor{Role: domain.RoleAdmin}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected empty subject to be rejected")
	}
}

func TestParseTokenRejectsNoneAlgorithm(t *testing.T) {
	auth := NewAuthManager("test-secret-key", "", "482913")
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "admin",
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, claims).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected alg=none token to be rejected")
	}
}

func TestValidateManagerPIN(t *testing.T) {
	auth := NewAuthManager("test-secret-key", "", "482913")
	if !auth.ValidateManagerPIN(" 482913 ") {
		t.Fatalf("expected configured pin to validate")
	}
	if auth.ValidateManagerPIN("000000") {
		t.Fatalf("expected wrong pin to fail")
	}

	disabled := NewAuthManager("test-secret-key", "", "")
	if disabled.ValidateManagerPIN("") || disabled.ValidateManagerPIN("disabled") {
		t.Fatalf("expected every pin to fail when none is configured")
	}
}
