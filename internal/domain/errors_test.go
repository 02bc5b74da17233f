package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestAuthDisplayMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrMissingEmail, "Missing Email!"},
		{ErrWrongPassword, "Incorrect Password!"},
		{ErrEmailInUse, "Email Already In Use!"},
		{fmt.Errorf("signing in: %w", ErrUserNotFound), "Account Does Not Exist!"},
		{errors.New("boom"), "Authentication Failed!"},
	}
	for _, tc := range cases {
		if got := AuthDisplayMessage(tc.err); got != tc.want {
			t.Fatalf("AuthDisplayMessage(%v)=%q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestIsAuthError(t *testing.T) {
	if !IsAuthError(ErrWeakPassword) {
		t.Fatalf("ErrWeakPassword must be an auth error")
	}
	if !IsAuthError(fmt.Errorf("wrapped: %w", ErrInvalidEmail)) {
		t.Fatalf("wrapped auth errors must match")
	}
	if IsAuthError(ErrNotFound) {
		t.Fatalf("store errors are not auth errors")
	}
}

func TestIsStoreError(t *testing.T) {
	if !IsStoreError(fmt.Errorf("getting users/u1: %w", ErrStoreUnavailable)) {
		t.Fatalf("wrapped store errors must match")
	}
	if IsStoreError(ErrAlreadyCollected) {
		t.Fatalf("domain errors are not store errors")
	}
}
