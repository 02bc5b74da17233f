package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/scavenger-hunt/internal/domain"
)

// MemoryStore is an in-process Store used by tests and store-less local
// runs. Ordering and path semantics match the Redis implementation.
type MemoryStore struct {
	mu      sync.RWMutex
	docs    map[string]Document
	pushSeq int
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Get returns the document at path.
func (s *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("getting %s: %w", path, domain.ErrStoreUnavailable)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[path]
	if !ok {
		return nil, fmt.Errorf("getting %s: %w", path, domain.ErrNotFound)
	}
	out := make(Document, len(doc))
	copy(out, doc)
	return out, nil
}

// Set overwrites the document at path.
func (s *MemoryStore) Set(ctx context.Context, path string, doc any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("setting %s: %w", path, domain.ErrStoreUnavailable)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = data
	return nil
}

// Update merges fields into the document at path.
func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("updating %s: %w", path, domain.ErrStoreUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]any)
	if doc, ok := s.docs[path]; ok {
		if err := json.Unmarshal(doc, &current); err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
	}
	for k, v := range fields {
		current[k] = v
	}
	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	s.docs[path] = data
	return nil
}

// Push generates a unique ordered child key under path.
func (s *MemoryStore) Push(ctx context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushSeq++
	return fmt.Sprintf("%012d", s.pushSeq), nil
}

// Remove deletes the document at path.
func (s *MemoryStore) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("removing %s: %w", path, domain.ErrStoreUnavailable)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, path)
	return nil
}

// Query returns the documents under path ordered ascending by orderBy.
func (s *MemoryStore) Query(ctx context.Context, path, orderBy string, opts ...QueryOption) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("querying %s: %w", path, domain.ErrStoreUnavailable)
	}
	o := buildOptions(opts)

	s.mu.RLock()
	prefix := path + "/"
	var paths []string
	for p := range s.docs {
		if strings.HasPrefix(p, prefix) && !strings.Contains(p[len(prefix):], "/") {
			paths = append(paths, p)
		}
	}
	// natural order for ties is the path order
	sort.Strings(paths)
	docs := make([]Document, len(paths))
	for i, p := range paths {
		docs[i] = s.docs[p]
	}
	s.mu.RUnlock()

	sort.SliceStable(docs, func(i, j int) bool {
		return orderField(docs[i], orderBy) < orderField(docs[j], orderBy)
	})

	if o.hasEndAt {
		cut := len(docs)
		for i, doc := range docs {
			if orderField(doc, orderBy) > o.endAt {
				cut = i
				break
			}
		}
		docs = docs[:cut]
	}
	if o.limit > 0 && len(docs) > o.limit {
		docs = docs[:o.limit]
	}
	return docs, nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
