package auth

import (
	"context"
	"encoding/hex"
	"testing"

	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/repo"
)

func TestHashCodeHex_consistency(t *testing.T) {
	phone, code, salt := "+15550001", "123456", "test-salt"
	h1 := hashCodeHex(phone, code, salt)
	h2 := hashCodeHex(phone, code, salt)
	if h1 != h2 {
		t.Errorf("hash should be deterministic: %q != %q", h1, h2)
	}
	decoded, err := hex.DecodeString(h1)
	if err != nil {
		t.Fatalf("hash should be valid hex: %v", err)
	}
	if len(decoded) != 32 {
		t.Errorf("SHA-256 hash should be 32 bytes, got %d", len(decoded))
	}
}

func TestHashCodeHex_differentInputsDifferentHash(t *testing.T) {
	salt := "salt"
	h1 := hashCodeHex("+15550001", "123456", salt)
	h2 := hashCodeHex("+15550002", "123456", salt)
	h3 := hashCodeHex("+15550001", "654321", salt)
	if h1 == h2 || h1 == h3 || h2 == h3 {
		t.Error("different inputs should produce different hashes")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !constantTimeEqual("same", "same") {
		t.Error("identical strings should compare equal")
	}
	if constantTimeEqual("same", "diff") {
		t.Error("different strings should not compare equal")
	}
	if constantTimeEqual("a", "ab") {
		t.Error("different length strings should not compare equal")
	}
}

func TestVerifyCode_devModeRoundTrip(t *testing.T) {
	store := repo.NewMemoryStore()
	jwtSvc := NewJWTService("test-secret-at-least-32-characters!!")
	svc := NewService(store, store, nil, jwtSvc, "salt", true, zap.NewNop())

	ctx := context.Background()
	phone := "+15550009"

	if err := svc.RequestCode(ctx, phone); err != nil {
		t.Fatalf("request code: %v", err)
	}

	if _, _, err := svc.VerifyCode(ctx, phone, "000000"); err != ErrInvalidCode {
		t.Fatalf("wrong code: got %v, want ErrInvalidCode", err)
	}

	// The attempt-delay guard applies between attempts; reset by
	// requesting a fresh code.
	if err := svc.RequestCode(ctx, phone); err != nil {
		t.Fatalf("request code again: %v", err)
	}
	token, user, err := svc.VerifyCode(ctx, phone, "123456")
	if err != nil {
		t.Fatalf("verify dev code: %v", err)
	}
	if token == "" {
		t.Fatal("expected a signed token")
	}
	if user.PhoneNumber != phone {
		t.Errorf("user phone = %q, want %q", user.PhoneNumber, phone)
	}

	claims, err := jwtSvc.VerifyToken(token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.PhoneNumber != phone {
		t.Errorf("claims phone = %q, want %q", claims.PhoneNumber, phone)
	}

	// The code is consumed; the same code must not verify twice.
	if _, _, err := svc.VerifyCode(ctx, phone, "123456"); err != ErrInvalidCode {
		t.Errorf("reused code: got %v, want ErrInvalidCode", err)
	}
}
