// Package storage holds the corpus stores: known recordings and their
// fingerprints, indexed by hash. Every store satisfies lookup.Store.
package storage

import (
	"context"

	"github.com/mdobak/go-xerrors"

	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/internal/model"
)

var (
	ErrNotFound       = xerrors.Message("recording not found")
	ErrCorpusNotFound = xerrors.Message("corpus does not exist")
	ErrEmptyName      = xerrors.Message("recording name is empty")
	errClientNil      = xerrors.Message("db client is nil")
)

type Store interface {
	// RegisterRecording returns the ID of the recording called name,
	// creating it if needed.
	RegisterRecording(ctx context.Context, name string) (int64, error)
	// StoreFingerprints adds records to a recording. Records already stored
	// for that recording are ignored.
	StoreFingerprints(ctx context.Context, recordingID int64, records []fingerprint.Record) error
	CouplesByHash(ctx context.Context, hash uint32) ([]model.Couple, error)
	ListRecordings(ctx context.Context) ([]model.Recording, error)
	// DeleteRecording removes a recording and its fingerprints.
	DeleteRecording(ctx context.Context, id int64) error
	Close() error
}
