// Package store abstracts the cloud document store the game syncs against:
// path-addressed JSON documents with async CRUD, unique-key push, and
// ordered queries over a collection.
package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Document is a raw JSON document as stored at a path.
type Document = json.RawMessage

// Store is the remote document store contract. Implementations must bound
// every operation with a deadline and surface expiry as ErrStoreUnavailable.
type Store interface {
	// Get returns the document at path, or domain.ErrNotFound.
	Get(ctx context.Context, path string) (Document, error)
	// Set marshals doc and overwrites the document at path.
	Set(ctx context.Context, path string, doc any) error
	// Update merges fields into the document at path. Missing documents
	// are created from the field map alone.
	Update(ctx context.Context, path string, fields map[string]any) error
	// Push generates a unique, creation-ordered child key under path.
	Push(ctx context.Context, path string) (string, error)
	// Remove deletes the document at path. Removing an absent path is a no-op.
	Remove(ctx context.Context, path string) error
	// Query returns the documents under the collection path ordered
	// ascending by the named numeric field. Tie order between equal field
	// values is the store's natural order and is unspecified.
	Query(ctx context.Context, path, orderBy string, opts ...QueryOption) ([]Document, error)
}

// Collection paths.
const (
	UsersPath       = "users"
	PlayersPath     = "players"
	LeaderboardPath = "leaderboard"
	CredentialsPath = "credentials"
	EmailsPath      = "emails"
)

// UserPath returns the path of a player record.
func UserPath(userID string) string {
	return UsersPath + "/" + userID
}

// EntryPath returns the path of a leaderboard entry.
func EntryPath(userID string) string {
	return LeaderboardPath + "/" + userID
}

// CredentialPath returns the path of a user's stored credentials.
func CredentialPath(userID string) string {
	return CredentialsPath + "/" + userID
}

// EmailPath returns the path of the email-to-user index entry. Emails are
// encoded because path segments cannot contain arbitrary characters.
func EmailPath(email string) string {
	key := base64.RawURLEncoding.EncodeToString([]byte(strings.ToLower(email)))
	return EmailsPath + "/" + key
}

// Decode unmarshals a document into v.
func Decode(doc Document, v any) error {
	return json.Unmarshal(doc, v)
}

// Encode marshals v into a document.
func Encode(v any) (Document, error) {
	return json.Marshal(v)
}

type queryOptions struct {
	limit    int
	endAt    float64
	hasEndAt bool
}

// QueryOption configures a Query call.
type QueryOption func(*queryOptions)

// Limit caps the number of returned documents, taken from the front of the
// ascending ordering.
func Limit(n int) QueryOption {
	return func(o *queryOptions) { o.limit = n }
}

// EndAt keeps only documents whose order-by field is <= value.
func EndAt(value float64) QueryOption {
	return func(o *queryOptions) {
		o.endAt = value
		o.hasEndAt = true
	}
}

func buildOptions(opts []QueryOption) queryOptions {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// orderField extracts the named numeric field from a document. Documents
// without the field sort as 0.
func orderField(doc Document, field string) float64 {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return 0
	}
	v, ok := m[field].(float64)
	if !ok {
		return 0
	}
	return v
}
