package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
)

// ErrNotFound is returned when no document exists at the given CID.
var ErrNotFound = errors.New("credential document not found")

// ContentStore is content-addressed storage for credential documents.
type ContentStore interface {
	// Put stores a document and returns its CID.
	Put(ctx context.Context, doc []byte) (string, error)
	// Get fetches the document at the given CID.
	Get(ctx context.Context, cid string) ([]byte, error)
}

// InMemoryStore is a content store for tests and local runs. CIDs are derived
// from the document hash so identical documents share an address.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory constructs an empty in-memory content store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string][]byte)}
}

func (s *InMemoryStore) Put(_ context.Context, doc []byte) (string, error) {
	sum := sha256.Sum256(doc)
	cid := "bafy" + hex.EncodeToString(sum[:])
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[cid] = append([]byte(nil), doc...)
	return cid, nil
}

func (s *InMemoryStore) Get(_ context.Context, cid string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[cid]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}
