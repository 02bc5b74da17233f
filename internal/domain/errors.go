package domain

import "errors"

// Store errors
var (
	ErrNotFound         = errors.New("record not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrReadFailed       = errors.New("store read failed")
	ErrWriteFailed      = errors.New("store write failed")
)

// Domain errors
var (
	ErrAlreadyCollected = errors.New("item already collected")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInternalError    = errors.New("internal server error")
)

// Auth errors, each mapped to a user-facing display string.
var (
	ErrMissingEmail    = errors.New("auth: missing email")
	ErrMissingPassword = errors.New("auth: missing password")
	ErrInvalidEmail    = errors.New("auth: invalid email")
	ErrWeakPassword    = errors.New("auth: weak password")
	ErrEmailInUse      = errors.New("auth: email already in use")
	ErrUserNotFound    = errors.New("auth: user not found")
	ErrWrongPassword   = errors.New("auth: wrong password")
)

// authMessages maps auth errors to the strings shown to the player.
var authMessages = map[error]string{
	ErrMissingEmail:    "Missing Email!",
	ErrMissingPassword: "Missing Password!",
	ErrInvalidEmail:    "Invalid Email!",
	ErrWeakPassword:    "Weak Password!",
	ErrEmailInUse:      "Email Already In Use!",
	ErrUserNotFound:    "Account Does Not Exist!",
	ErrWrongPassword:   "Incorrect Password!",
}

// AuthDisplayMessage returns the user-facing string for an auth error, or a
// generic fallback when the error is not one of the auth sentinels.
func AuthDisplayMessage(err error) string {
	for sentinel, msg := range authMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return "Authentication Failed!"
}

// IsAuthError reports whether err is one of the auth sentinels.
func IsAuthError(err error) bool {
	for sentinel := range authMessages {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// IsNotFoundError checks if an error is a not-found type error. Absence is
// often a valid first-run signal rather than a failure.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUserNotFound)
}

// IsStoreError reports whether err is a store-level failure that callers
// should log and swallow rather than abort on.
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrReadFailed) ||
		errors.Is(err, ErrWriteFailed)
}
