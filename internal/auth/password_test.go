package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
)

func TestHashPassword_VerifyRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=1$") {
		t.Errorf("hash prefix = %q", hash[:32])
	}

	ok, err := VerifyPassword("correct horse battery staple", hash)
	if err != nil || !ok {
		t.Errorf("VerifyPassword(correct) = %v, %v", ok, err)
	}
	ok, err = VerifyPassword("wrong", hash)
	if err != nil || ok {
		t.Errorf("VerifyPassword(wrong) = %v, %v", ok, err)
	}
}

func TestHashPassword_UniqueSalt(t *testing.T) {
	a, _ := HashPassword("same") //nolint:errcheck // test
	b, _ := HashPassword("same") //nolint:errcheck // test
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	tests := map[string]string{
		"empty":            "",
		"plaintext":        "plaintext",
		"other algorithm":  "$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		"old version":      "$argon2id$v=16$m=65536,t=3,p=1$c2FsdA$aGFzaA",
		"garbage params":   "$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"unknown param":    "$argon2id$v=19$m=65536,t=3,x=1$c2FsdA$aGFzaA",
		"zero parallelism": "$argon2id$v=19$m=65536,t=3,p=0$c2FsdA$aGFzaA",
		"missing cost":     "$argon2id$v=19$m=65536,p=1$c2FsdA$aGFzaA",
		"bad salt":         "$argon2id$v=19$m=65536,t=3,p=1$!!!$aGFzaA",
		"empty key":        "$argon2id$v=19$m=65536,t=3,p=1$c2FsdA$",
	}
	for name, h := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := VerifyPassword("x", h); !errors.Is(err, ErrMalformedHash) {
				t.Errorf("VerifyPassword(%q) error = %v, want ErrMalformedHash", h, err)
			}
		})
	}
}

func TestVerifyPassword_OlderCosts(t *testing.T) {
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte("pw"), salt, 1, 8*1024, 2, 32)
	old := "$argon2id$v=19$m=8192,t=1,p=2$" + b64.EncodeToString(salt) + "$" + b64.EncodeToString(key)

	ok, err := VerifyPassword("pw", old)
	if err != nil || !ok {
		t.Fatalf("VerifyPassword(old costs) = %v, %v", ok, err)
	}
	if !NeedsRehash(old) {
		t.Error("NeedsRehash(old costs) = false")
	}

	current, _ := HashPassword("pw") //nolint:errcheck // test
	if NeedsRehash(current) {
		t.Error("NeedsRehash(current) = true")
	}
	if !NeedsRehash("garbage") {
		t.Error("NeedsRehash(garbage) = false")
	}
}

func TestDummyHash_Verifiable(t *testing.T) {
	ok, err := VerifyPassword("anything", dummyHash())
	if err != nil {
		t.Fatalf("VerifyPassword(dummy) error = %v", err)
	}
	if ok {
		t.Error("dummy hash should not match arbitrary input")
	}
}
