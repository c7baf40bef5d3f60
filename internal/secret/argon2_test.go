package secret

import (
	"errors"
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Argon2 {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Memory = minMemoryKB
	cfg.Time = 1
	h, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := testHasher(t)
	const guestSecret = "6f1c3b1e-8f0a-4f57-9a53-6a0e6a1f2d11-0f3c2b47-9d5e-4c7a-8e0f-1a2b3c4d5e6f"

	encoded, err := h.Hash(guestSecret)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	if strings.Contains(encoded, guestSecret) {
		t.Fatal("hash must not contain the raw secret")
	}

	ok, err := h.Verify(guestSecret, encoded)
	if err != nil || !ok {
		t.Fatalf("expected match, ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify(guestSecret+"x", encoded)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}
}

func TestHashRejectsShortSecret(t *testing.T) {
	h := testHasher(t)
	if _, err := h.Hash("short"); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h := testHasher(t)
	cases := []string{
		"",
		"plain",
		"$argon2i$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$aGFzaGhhc2hoYXNoaGFzaA",
	}
	for _, c := range cases {
		if _, err := h.Verify("some-long-guest-secret", c); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("expected ErrInvalidHash for %q, got %v", c, err)
		}
	}
}

func TestNewArgon2ValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SaltLength = 8
	if _, err := NewArgon2(cfg); err == nil {
		t.Fatal("expected config validation error")
	}
}
