package sessionauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/airwave/stationd/internal/catalog"
)

func newTestManager(t *testing.T) (*Manager, *catalog.Store) {
	t.Helper()
	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory catalog: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mgr := New(store, Options{CookieKey: "0123456789012345678901234567890123456789012345678901234567890123456789", Secure: false})
	return mgr, store
}

func TestRegisterAndLogin(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	user, err := mgr.Register(ctx, "alice", "hunter2hunter2")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected username: %q", user.Username)
	}

	w := httptest.NewRecorder()
	loggedIn, err := mgr.Login(ctx, w, "alice", "hunter2hunter2", "203.0.113.1:12345")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if loggedIn.ID != user.ID {
		t.Fatalf("expected same user id, got %d vs %d", loggedIn.ID, user.ID)
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != CookieName {
		t.Fatalf("expected a single %s cookie, got %+v", CookieName, cookies)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := mgr.Register(ctx, "bob", "password123"); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if _, err := mgr.Register(ctx, "bob", "different-password"); err != ErrUsernameTaken {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := mgr.Register(ctx, "carol", "correct-password"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	w := httptest.NewRecorder()
	if _, err := mgr.Login(ctx, w, "carol", "wrong-password", "203.0.113.2:1"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestResolveSessionRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)
	ctx := context.Background()

	user, err := mgr.Register(ctx, "dave", "password123456")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	w := httptest.NewRecorder()
	if err := mgr.IssueSession(w, user); err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}

	resolved, err := mgr.ResolveSession(ctx, req)
	if err != nil {
		t.Fatalf("ResolveSession failed: %v", err)
	}
	if resolved.ID != user.ID {
		t.Fatalf("expected resolved user id %d, got %d", user.ID, resolved.ID)
	}
}

func TestResolveSessionMissingCookie(t *testing.T) {
	mgr, _ := newTestManager(t)
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)

	if _, err := mgr.ResolveSession(context.Background(), req); err != ErrMissingToken {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestResolveSessionInvalidSignature(t *testing.T) {
	mgr, _ := newTestManager(t)
	other := New(&catalog.Store{}, Options{CookieKey: "9999999999999999999999999999999999999999999999999999999999999999999999", Secure: false})

	user := catalog.User{ID: 1, Username: "eve"}
	w := httptest.NewRecorder()
	if err := other.IssueSession(w, user); err != nil {
		t.Fatalf("IssueSession failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	for _, c := range w.Result().Cookies() {
		req.AddCookie(c)
	}

	if _, err := mgr.ResolveSession(context.Background(), req); err == nil {
		t.Fatal("expected signature verification to fail against a different key")
	}
}
