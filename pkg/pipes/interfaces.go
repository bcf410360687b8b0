package pipes

import (
	"context"
	"io"

	"github.com/NoahNelson/Pipes/internal/storage"
)

type Service interface {
	// MatchFiles scores a snippet fingerprint file against one master file.
	MatchFiles(ctx context.Context, snippetPath, masterPath string) (PairwiseResult, error)
	// MatchCorpus scores a snippet fingerprint file against the corpus.
	MatchCorpus(ctx context.Context, snippetPath string) (CorpusResult, error)
	// MatchReader is MatchCorpus for a fingerprint stream in memory or on
	// the wire. A zero delim uses the configured delimiter.
	MatchReader(ctx context.Context, r io.Reader, delim rune) (CorpusResult, error)
	Ingest(ctx context.Context, path, name string) (IngestResult, error)
	ListRecordings(ctx context.Context) ([]Recording, error)
	DeleteRecording(ctx context.Context, id int64) error
	Close() error
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}

var (
	// ErrNotFound is returned when deleting a recording that does not exist.
	ErrNotFound = storage.ErrNotFound
	// ErrCorpusNotFound is returned when matching against an SQLite corpus
	// file that has never been ingested into.
	ErrCorpusNotFound = storage.ErrCorpusNotFound
)
