package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2id parameters. The stored hash string carries them, so they can
	// be tuned without invalidating existing hashes.
	argonMemory  = 64 * 1024
	argonTime    = 3
	argonThreads = 2
	argonSaltLen = 16
	argonKeyLen  = 32

	// MinPasswordLength is the minimum accepted password length.
	MinPasswordLength = 8
)

// HashPassword derives an argon2id hash and encodes it in PHC string format:
// $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key))
	return encoded, nil
}

// VerifyPassword checks a password against a stored PHC hash string. The
// parameters come from the stored string, never from the caller. A hash that
// fails to parse is an error, not a mismatch.
func VerifyPassword(password, encoded string) (bool, error) {
	memory, timeCost, threads, salt, key, err := parseHash(encoded)
	if err != nil {
		return false, err
	}

	derived := argon2.IDKey([]byte(password), salt, timeCost, memory, threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1, nil
}

func parseHash(encoded string) (memory, timeCost uint32, threads uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, fmt.Errorf("malformed password hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("parse hash version: %w", err)
	}
	if version != argon2.Version {
		return 0, 0, 0, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("parse hash parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("decode salt: %w", err)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, fmt.Errorf("decode hash: %w", err)
	}
	if len(key) == 0 {
		return 0, 0, 0, nil, nil, fmt.Errorf("empty hash")
	}
	return memory, timeCost, threads, salt, key, nil
}

// dummyHash is verified against when a login names an unknown email, so the
// response time does not reveal whether the account exists.
var dummyHash = mustDummyHash()

func mustDummyHash() string {
	h, err := HashPassword("timing-equalizer")
	if err != nil {
		panic(fmt.Sprintf("crypto: dummy hash: %v", err))
	}
	return h
}

// VerifyDummy burns the same work as a real verification and always fails.
func VerifyDummy(password string) {
	_, _ = VerifyPassword(password, dummyHash)
}

// ValidatePassword checks the minimum length requirement.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLength)
	}
	return nil
}
