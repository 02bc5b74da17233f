// Package auth implements identity for the hunt: signup, sign-in, session
// tokens, and the current-user handle the game core reads.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/crypto/bcrypt"

	"github.com/scavenger-hunt/internal/config"
	"github.com/scavenger-hunt/internal/domain"
	"github.com/scavenger-hunt/internal/store"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// User is the authenticated identity the core reads.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Session is an authenticated sign-in with its bearer token.
type Session struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims carries the user identity inside a session token.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// credentials is the stored login secret at credentials/{userId}.
type credentials struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

// emailIndex maps an encoded email to its user at emails/{emailKey}.
type emailIndex struct {
	UserID string `json:"userId"`
}

// Service implements the auth session over the remote store.
type Service struct {
	store  store.Store
	cfg    *config.AuthConfig
	clock  clockwork.Clock
	logger *slog.Logger

	mu      sync.RWMutex
	current *User
}

// NewService creates the auth service.
func NewService(st store.Store, cfg *config.AuthConfig, clock clockwork.Clock, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		cfg:    cfg,
		clock:  clock,
		logger: logger,
	}
}

// CreateUser registers a new account and writes the initial player record
// (empty collection, not completed) at users/{uid}.
func (s *Service) CreateUser(ctx context.Context, email, password, username string) (*User, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, domain.ErrMissingPassword
	}
	if len(password) < s.cfg.MinPassword {
		return nil, domain.ErrWeakPassword
	}
	if username == "" {
		username = email[:strings.Index(email, "@")]
	}

	if _, err := s.store.Get(ctx, store.EmailPath(email)); err == nil {
		return nil, domain.ErrEmailInUse
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	uid := uuid.NewString()
	creds := credentials{
		UserID:       uid,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.clock.Now().Unix(),
	}
	if err := s.store.Set(ctx, store.CredentialPath(uid), creds); err != nil {
		return nil, fmt.Errorf("storing credentials: %w", err)
	}
	if err := s.store.Set(ctx, store.EmailPath(email), emailIndex{UserID: uid}); err != nil {
		return nil, fmt.Errorf("indexing email: %w", err)
	}

	record := domain.NewPlayerRecord(uid, username, email)
	if err := s.store.Set(ctx, store.UserPath(uid), record); err != nil {
		// the account exists; the record is recreated lazily on first load
		s.logger.Warn("failed to write initial player record", "user_id", uid, "error", err)
	}

	s.logger.Info("user registered", "user_id", uid, "username", username)
	return &User{ID: uid, DisplayName: username, Email: email}, nil
}

// SignIn verifies credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, domain.ErrMissingPassword
	}

	doc, err := s.store.Get(ctx, store.EmailPath(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("looking up email: %w", err)
	}
	var idx emailIndex
	if err := store.Decode(doc, &idx); err != nil {
		return nil, fmt.Errorf("decoding email index: %w", err)
	}

	doc, err = s.store.Get(ctx, store.CredentialPath(idx.UserID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	var creds credentials
	if err := store.Decode(doc, &creds); err != nil {
		return nil, fmt.Errorf("decoding credentials: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrWrongPassword
	}

	username := email
	if doc, err := s.store.Get(ctx, store.UserPath(idx.UserID)); err == nil {
		var record domain.PlayerRecord
		if err := store.Decode(doc, &record); err == nil && record.PlayerName != "" {
			username = record.PlayerName
		}
	}

	user := User{ID: idx.UserID, DisplayName: username, Email: email}
	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = &user
	s.mu.Unlock()

	s.logger.Info("user signed in", "user_id", user.ID, "username", username)
	return session, nil
}

// SignOut clears the current user.
func (s *Service) SignOut() {
	s.mu.Lock()
	if s.current != nil {
		s.logger.Info("user signed out", "user_id", s.current.ID)
	}
	s.current = nil
	s.mu.Unlock()
}

// CurrentUser returns the signed-in user, if any.
func (s *Service) CurrentUser() (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, false
	}
	u := *s.current
	return &u, true
}

// issueSession signs a bearer token for the user.
func (s *Service) issueSession(user User) (*Session, error) {
	now := s.clock.Now()
	expires := now.Add(s.cfg.TokenTTL)
	claims := Claims{
		UserID:   user.ID,
		Username: user.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("signing token: %w", err)
	}
	return &Session{User: user, Token: signed, ExpiresAt: expires}, nil
}

// ValidateToken parses and verifies a session token.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(s.clock.Now()) {
		return nil, ErrExpiredToken
	}
	return claims, nil
}

// DeleteUser administratively removes a player: record, leaderboard entry,
// credentials, and email index.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	var email string
	if doc, err := s.store.Get(ctx, store.CredentialPath(userID)); err == nil {
		var creds credentials
		if err := store.Decode(doc, &creds); err == nil {
			email = creds.Email
		}
	}

	paths := []string{
		store.UserPath(userID),
		store.EntryPath(userID),
		store.CredentialPath(userID),
	}
	if email != "" {
		paths = append(paths, store.EmailPath(email))
	}
	for _, path := range paths {
		if err := s.store.Remove(ctx, path); err != nil {
			return fmt.Errorf("deleting %s: %w", path, err)
		}
	}

	s.mu.Lock()
	if s.current != nil && s.current.ID == userID {
		s.current = nil
	}
	s.mu.Unlock()

	s.logger.Info("user deleted", "user_id", userID)
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return domain.ErrMissingEmail
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || !strings.Contains(email[at:], ".") {
		return domain.ErrInvalidEmail
	}
	return nil
}
