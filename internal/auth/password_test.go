package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/opsdash/internal/apperror"
)

func newTestPasswordService() *PasswordService {
	return NewPasswordServiceForTest(bcrypt.MinCost)
}

// =========================================================================
// STRENGTH
// =========================================================================

func TestCheckStrength(t *testing.T) {
	ps := newTestPasswordService()

	tests := []struct {
		name    string
		pw      string
		wantErr bool
	}{
		{"too short", "abc1234", true},
		{"exactly min", "abcd1234", false},
		{"multibyte counts runes", "пароль-密码", false},
		{"over 72 bytes", strings.Repeat("a", 73), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ps.CheckStrength(tt.pw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CheckStrength() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("CheckStrength() error kind = %v, want ErrValidation", err)
			}
		})
	}
}

// =========================================================================
// HASH / VERIFY
// =========================================================================

func TestHash_SaltedAndBcrypt(t *testing.T) {
	ps := newTestPasswordService()

	h1, err := ps.Hash("same-password")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	h2, _ := ps.Hash("same-password")

	if !strings.HasPrefix(h1, "$2") {
		t.Errorf("Hash() does not look like bcrypt: %q", h1)
	}
	if h1 == h2 {
		t.Error("Hash() produced identical hashes for the same password")
	}
}

func TestHash_RejectsOver72Bytes(t *testing.T) {
	ps := newTestPasswordService()

	if _, err := ps.Hash(strings.Repeat("a", 73)); err == nil {
		t.Fatal("Hash() should reject passwords longer than 72 bytes")
	}
	if _, err := ps.Hash(strings.Repeat("a", 72)); err != nil {
		t.Fatalf("Hash() should accept 72 bytes: %v", err)
	}
}

func TestVerify(t *testing.T) {
	ps := newTestPasswordService()
	hash, _ := ps.Hash("correct-horse-battery-staple")

	if err := ps.Verify(hash, "correct-horse-battery-staple"); err != nil {
		t.Errorf("Verify() correct password: %v", err)
	}
	if err := ps.Verify(hash, "wrong"); err == nil {
		t.Error("Verify() accepted a wrong password")
	}
	if err := ps.Verify(hash, ""); err == nil {
		t.Error("Verify() accepted an empty password")
	}
	if err := ps.Verify("not-a-bcrypt-hash", "x"); err == nil {
		t.Error("Verify() accepted a garbage hash")
	}
}
