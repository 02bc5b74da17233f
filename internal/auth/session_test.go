package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/scavenger-hunt/internal/config"
	"github.com/scavenger-hunt/internal/domain"
	"github.com/scavenger-hunt/internal/store"
)

func newTestAuth(t *testing.T) (*Service, *store.MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	st := store.NewMemoryStore()
	clock := clockwork.NewFakeClock()
	cfg := &config.AuthConfig{
		JWTSecret:   "test-secret",
		Issuer:      "scavenger-hunt",
		TokenTTL:    time.Hour,
		BcryptCost:  bcrypt.MinCost,
		MinPassword: 6,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, cfg, clock, logger), st, clock
}

func TestCreateUserWritesPlayerRecord(t *testing.T) {
	svc, st, _ := newTestAuth(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "ada@example.com", "hunter2!", "Ada")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("user must have an id")
	}
	if user.DisplayName != "Ada" {
		t.Fatalf("DisplayName=%q, want Ada", user.DisplayName)
	}

	doc, err := st.Get(ctx, store.UserPath(user.ID))
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	var record domain.PlayerRecord
	if err := store.Decode(doc, &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.PlayerName != "Ada" || record.Email != "ada@example.com" {
		t.Fatalf("record=%+v, want Ada/ada@example.com", record)
	}
	if record.CompletedSet || record.TimeTaken != domain.UnsetTime {
		t.Fatalf("fresh record must start uncompleted with unset time, got %+v", record)
	}
}

func TestCreateUserDefaultsUsername(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	user, err := svc.CreateUser(context.Background(), "bo@example.com", "hunter2!", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.DisplayName != "bo" {
		t.Fatalf("DisplayName=%q, want %q from email local part", user.DisplayName, "bo")
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"missing email", "", "hunter2!", domain.ErrMissingEmail},
		{"malformed email", "not-an-email", "hunter2!", domain.ErrInvalidEmail},
		{"missing password", "a@b.com", "", domain.ErrMissingPassword},
		{"weak password", "a@b.com", "abc", domain.ErrWeakPassword},
	}
	for _, tc := range cases {
		if _, err := svc.CreateUser(ctx, tc.email, tc.password, "X"); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err=%v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "ada@example.com", "hunter2!", "Ada"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := svc.CreateUser(ctx, "Ada@Example.com", "other-pass", "Ada2"); !errors.Is(err, domain.ErrEmailInUse) {
		t.Fatalf("err=%v, want ErrEmailInUse for same email in different case", err)
	}
}

func TestSignInRoundTrip(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, "ada@example.com", "hunter2!", "Ada")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	session, err := svc.SignIn(ctx, "ada@example.com", "hunter2!")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.User.ID != created.ID {
		t.Fatalf("session user=%q, want %q", session.User.ID, created.ID)
	}
	if session.User.DisplayName != "Ada" {
		t.Fatalf("DisplayName=%q, want Ada from player record", session.User.DisplayName)
	}
	if session.Token == "" {
		t.Fatalf("session must carry a token")
	}

	current, ok := svc.CurrentUser()
	if !ok || current.ID != created.ID {
		t.Fatalf("CurrentUser=%v ok=%v, want signed-in user", current, ok)
	}

	claims, err := svc.ValidateToken(session.Token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != created.ID {
		t.Fatalf("claims user=%q, want %q", claims.UserID, created.ID)
	}
}

func TestSignInWrongPassword(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "ada@example.com", "hunter2!", "Ada"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := svc.SignIn(ctx, "ada@example.com", "wrong"); !errors.Is(err, domain.ErrWrongPassword) {
		t.Fatalf("err=%v, want ErrWrongPassword", err)
	}
	if _, ok := svc.CurrentUser(); ok {
		t.Fatalf("failed sign-in must not set the current user")
	}
}

func TestSignInUnknownUser(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	if _, err := svc.SignIn(context.Background(), "ghost@example.com", "hunter2!"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("err=%v, want ErrUserNotFound", err)
	}
}

func TestSignOutClearsCurrentUser(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	ctx := context.Background()

	svc.CreateUser(ctx, "ada@example.com", "hunter2!", "Ada")
	if _, err := svc.SignIn(ctx, "ada@example.com", "hunter2!"); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	svc.SignOut()
	if _, ok := svc.CurrentUser(); ok {
		t.Fatalf("CurrentUser must be empty after sign-out")
	}
}

func TestValidateTokenExpiry(t *testing.T) {
	svc, _, clock := newTestAuth(t)
	ctx := context.Background()

	svc.CreateUser(ctx, "ada@example.com", "hunter2!", "Ada")
	session, err := svc.SignIn(ctx, "ada@example.com", "hunter2!")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}

	clock.Advance(2 * time.Hour)
	if _, err := svc.ValidateToken(session.Token); err == nil {
		t.Fatalf("expired token must not validate")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestAuth(t)
	if _, err := svc.ValidateToken("not-a-token"); err == nil {
		t.Fatalf("garbage token must not validate")
	}
}

func TestDeleteUserRemovesAllPaths(t *testing.T) {
	svc, st, _ := newTestAuth(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, "ada@example.com", "hunter2!", "Ada")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := st.Set(ctx, store.EntryPath(user.ID), map[string]any{"completionTime": 12.5}); err != nil {
		t.Fatalf("seed entry: %v", err)
	}

	if err := svc.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	for _, path := range []string{
		store.UserPath(user.ID),
		store.EntryPath(user.ID),
		store.CredentialPath(user.ID),
		store.EmailPath("ada@example.com"),
	} {
		if _, err := st.Get(ctx, path); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("path %s still present after delete (err=%v)", path, err)
		}
	}

	// the freed email can be registered again
	if _, err := svc.CreateUser(ctx, "ada@example.com", "hunter2!", "Ada"); err != nil {
		t.Fatalf("re-register after delete: %v", err)
	}
}
