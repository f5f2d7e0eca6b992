package crypto

import (
	"context"
	"errors"
	"testing"

	"github.com/healthcure/clinic/internal/domain"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	h := NewPasswordHasher(2)
	ctx := context.Background()

	hash, err := h.Hash(ctx, "longpassword1")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	ok, err := h.Verify(ctx, "longpassword1", hash)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("correct secret did not verify")
	}

	ok, err = h.Verify(ctx, "wrongpassword", hash)
	if err != nil {
		t.Fatalf("Verify wrong secret: %v", err)
	}
	if ok {
		t.Fatal("wrong secret verified")
	}
}

func TestPasswordHasher_SaltedOutput(t *testing.T) {
	h := NewPasswordHasher(2)
	ctx := context.Background()

	a, err := h.Hash(ctx, "samesecret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := h.Hash(ctx, "samesecret")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same secret are identical; salt is not being drawn per call")
	}
}

func TestPasswordHasher_CorruptRecord(t *testing.T) {
	h := NewPasswordHasher(1)

	_, err := h.Verify(context.Background(), "whatever", "not-an-argon2id-record")
	if !errors.Is(err, domain.ErrCorruptCredential) {
		t.Fatalf("want ErrCorruptCredential, got %v", err)
	}
}

func TestPasswordHasher_CanceledContext(t *testing.T) {
	h := NewPasswordHasher(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.Hash(ctx, "secret"); err == nil {
		t.Fatal("expected error when context is already canceled")
	}
}
