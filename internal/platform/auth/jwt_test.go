package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/healthcure/clinic/internal/domain"
)

func TestIssueAndVerify_Success(t *testing.T) {
	t.Parallel()

	iss := NewIssuer("super-secret", 30*time.Minute)

	tok, err := iss.Issue(42, "dr_house", domain.RoleDoctor)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	sess, err := iss.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sess.UserID != 42 || sess.Username != "dr_house" || sess.Role != domain.RoleDoctor {
		t.Fatalf("claims mismatch: %+v", sess)
	}
	if d := sess.ExpiresAt.Sub(sess.IssuedAt); d != 30*time.Minute {
		t.Fatalf("token lifetime: got %v want 30m", d)
	}
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	iss := NewIssuer("secret", -1*time.Second)

	tok, err := iss.Issue(1, "jdoe", domain.RolePatient)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = iss.Verify(tok)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewIssuer("right-secret", time.Hour).Issue(1, "jdoe", domain.RolePatient)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	_, err = NewIssuer("wrong-secret", time.Hour).Verify(tok)
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("want ErrTokenInvalid, got %v", err)
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	t.Parallel()

	iss := NewIssuer("secret", time.Hour)
	tok, err := iss.Issue(5, "nurse_joy", domain.RoleNurse)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %q", tok)
	}
	body := []byte(parts[1])
	body[0] ^= 0x01
	tampered := parts[0] + "." + string(body) + "." + parts[2]

	if _, err := iss.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("want ErrTokenInvalid, got %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	t.Parallel()

	iss := NewIssuer("secret", time.Hour)
	if _, err := iss.Verify("not.a.jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("want ErrTokenInvalid, got %v", err)
	}
}

func TestVerify_UnknownRoleRejected(t *testing.T) {
	t.Parallel()

	iss := NewIssuer("secret", time.Hour)
	tok, err := iss.Issue(9, "ghost", domain.Role("superuser"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := iss.Verify(tok); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("want ErrTokenInvalid for out-of-enum role, got %v", err)
	}
}
