// Package lookup answers "which recordings contain this hash, and where?"
// over the corpus backends: a rewindable fingerprint stream, a memory-mapped
// fingerprint file, an in-memory index, or an indexed store.
package lookup

import (
	"context"
	"fmt"

	"github.com/NoahNelson/Pipes/internal/model"
)

// Error is returned when a backend is unavailable or its data is corrupt.
type Error struct {
	Backend string
	Hash    uint32
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s lookup of hash %d: %v", e.Backend, e.Hash, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Store is the single capability an indexed corpus backend must provide.
type Store interface {
	CouplesByHash(ctx context.Context, hash uint32) ([]model.Couple, error)
}

// Indexed looks hashes up in a Store keyed by hash.
type Indexed struct {
	backend string
	store   Store
}

// NewIndexed wraps store. backend names the store in errors and logs.
func NewIndexed(backend string, store Store) *Indexed {
	return &Indexed{backend: backend, store: store}
}

func (l *Indexed) Lookup(ctx context.Context, hash uint32) ([]model.Couple, error) {
	couples, err := l.store.CouplesByHash(ctx, hash)
	if err != nil {
		return nil, &Error{Backend: l.backend, Hash: hash, Err: err}
	}
	return couples, nil
}

func (l *Indexed) String() string {
	return l.backend
}
