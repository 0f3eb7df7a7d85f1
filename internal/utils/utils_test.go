package utils_test

import (
	"testing"

	"github.com/finitixhub/finitix_be/internal/utils"
)

func TestEncryptID_RoundTrip(t *testing.T) {
	key := "0123456789abcdef"
	for _, id := range []uint{1, 42, 987654321} {
		enc, err := utils.EncryptID(id, key)
		if err != nil {
			t.Fatalf("EncryptID(%d): %v", id, err)
		}
		got, err := utils.DecryptID(enc, key)
		if err != nil {
			t.Fatalf("DecryptID(%q): %v", enc, err)
		}
		if got != id {
			t.Errorf("DecryptID(EncryptID(%d)) = %d", id, got)
		}
	}
}

func TestDecryptID_PlainNumber(t *testing.T) {
	got, err := utils.DecryptID("17", "")
	if err != nil || got != 17 {
		t.Fatalf("DecryptID(\"17\") = %d, %v", got, err)
	}
	// with a key only encrypted ids are accepted
	if _, err := utils.DecryptID("17", "0123456789abcdef"); err == nil {
		t.Fatal("plain id accepted while a key is set")
	}
}

func TestDecryptID_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"garbage":   "***",
		"too short": "AAAA",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := utils.DecryptID(in, "0123456789abcdef"); err == nil {
				t.Fatalf("DecryptID(%q) expected error", in)
			}
		})
	}
}

func TestEncryptID_BadKey(t *testing.T) {
	if _, err := utils.EncryptID(1, "short"); err == nil {
		t.Fatal("expected error for invalid key length")
	}
}

func TestJWT_SignAndParse(t *testing.T) {
	tok, err := utils.SignJWT("secret", "user-1", "user", 5)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	claims, err := utils.ParseJWT("secret", tok)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "user" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.ID == "" {
		t.Error("expected a session id in the token")
	}
	if _, err := utils.ParseJWT("other", tok); err == nil {
		t.Error("expected signature error with wrong secret")
	}
}

func TestPassword(t *testing.T) {
	hash, err := utils.HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !utils.CheckPassword(hash, "s3cret!") {
		t.Error("CheckPassword rejected the right password")
	}
	if utils.CheckPassword(hash, "wrong") {
		t.Error("CheckPassword accepted a wrong password")
	}
}
