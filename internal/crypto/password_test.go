package crypto

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("p@ssw0rd!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Errorf("hash %q is not a PHC argon2id string", hash)
	}

	ok, err := VerifyPassword("p@ssw0rd!", hash)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Error("correct password did not verify")
	}

	ok, err = VerifyPassword("wrong", hash)
	if err != nil {
		t.Fatalf("VerifyPassword(wrong): %v", err)
	}
	if ok {
		t.Error("wrong password verified")
	}
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	h1, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h2, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same password are identical; salt is not random")
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	for _, bad := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536,t=3,p=2$notbase64!!$xx",
		"$bcrypt$whatever",
		"$argon2id$v=18$m=65536,t=3,p=2$c2FsdA$aGFzaA",
	} {
		if _, err := VerifyPassword("x", bad); err == nil {
			t.Errorf("VerifyPassword accepted malformed hash %q", bad)
		}
	}
}

func TestVerifyPasswordParamsFromHash(t *testing.T) {
	// A hash produced with different cost parameters still verifies, because
	// the stored string carries them.
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte("carry-params"), salt, 2, 32*1024, 1, 32)
	legacy := fmt.Sprintf("$argon2id$v=19$m=32768,t=2,p=1$%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))

	ok, err := VerifyPassword("carry-params", legacy)
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Error("hash with non-default parameters did not verify")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("p@ssw0rd!"); err != nil {
		t.Errorf("ValidatePassword(9 chars) = %v, want nil", err)
	}
	if err := ValidatePassword("short"); err == nil {
		t.Error("ValidatePassword accepted a 5-char password")
	}
}
