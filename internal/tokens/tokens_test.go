package tokens

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour, 24*time.Hour)

	creds, err := iss.Issue("user-1")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if creds.Access == "" || creds.Refresh == "" || creds.Access == creds.Refresh {
		t.Fatalf("unexpected credentials: %+v", creds)
	}

	id, err := iss.Verify(creds.Access, Access)
	if err != nil || id != "user-1" {
		t.Fatalf("Verify access = %q, %v", id, err)
	}
	id, err = iss.Verify(creds.Refresh, Refresh)
	if err != nil || id != "user-1" {
		t.Fatalf("Verify refresh = %q, %v", id, err)
	}
}

func TestVerify_WrongKind(t *testing.T) {
	iss := NewIssuer("test-secret", time.Hour, 24*time.Hour)
	creds, _ := iss.Issue("user-1")

	if _, err := iss.Verify(creds.Refresh, Access); !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}
}

func TestVerify_Expired(t *testing.T) {
	iss := NewIssuer("test-secret", time.Minute, time.Hour)
	past := time.Now().Add(-2 * time.Hour)
	iss.now = func() time.Time { return past }
	access, err := iss.AccessFor("user-1")
	if err != nil {
		t.Fatalf("AccessFor failed: %v", err)
	}

	iss.now = time.Now
	if _, err := iss.Verify(access, Access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	a := NewIssuer("secret-a", time.Hour, time.Hour)
	b := NewIssuer("secret-b", time.Hour, time.Hour)
	access, _ := a.AccessFor("user-1")

	if _, err := b.Verify(access, Access); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
