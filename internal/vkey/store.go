// Package vkey stores the verification keys used to check submitted proofs,
// one per circuit name.
package vkey

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrNotFound = errors.New("verification key not found")

// Record binds a circuit name to its verification key document.
type Record struct {
	CircuitName string
	Key         json.RawMessage
	UpdatedAt   time.Time
}

// Store persists verification keys.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, circuitName string) (*Record, error)
}

// InMemoryStore keeps verification keys in memory.
type InMemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*Record
}

// NewMemory constructs an empty in-memory verification key store.
func NewMemory() *InMemoryStore {
	return &InMemoryStore{keys: make(map[string]*Record)}
}

func (s *InMemoryStore) Put(_ context.Context, rec *Record) error {
	if rec == nil || rec.CircuitName == "" {
		return fmt.Errorf("verification key record with circuit name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	copied.Key = append(json.RawMessage(nil), rec.Key...)
	s.keys[rec.CircuitName] = &copied
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, circuitName string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[circuitName]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rec
	copied.Key = append(json.RawMessage(nil), rec.Key...)
	return &copied, nil
}

// PostgresStore persists verification keys in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed verification key store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, rec *Record) error {
	if rec == nil || rec.CircuitName == "" {
		return fmt.Errorf("verification key record with circuit name is required")
	}
	query := `
		INSERT INTO verification_keys (circuit_name, key, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (circuit_name) DO UPDATE
		SET key = EXCLUDED.key, updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, rec.CircuitName, []byte(rec.Key), rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put verification key: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, circuitName string) (*Record, error) {
	var rec Record
	var key []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT circuit_name, key, updated_at FROM verification_keys WHERE circuit_name = $1`,
		circuitName,
	).Scan(&rec.CircuitName, &key, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get verification key: %w", err)
	}
	rec.Key = key
	return &rec, nil
}
