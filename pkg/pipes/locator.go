package pipes

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/NoahNelson/Pipes/internal/storage"
)

// Backend is the kind of storage a locator names.
type Backend int

const (
	BackendFile Backend = iota
	BackendSQLite
	BackendPostgres
	BackendMongo
)

func (b Backend) String() string {
	switch b {
	case BackendFile:
		return "file"
	case BackendSQLite:
		return "sqlite"
	case BackendPostgres:
		return "postgres"
	case BackendMongo:
		return "mongo"
	default:
		return "unknown"
	}
}

type Locator struct {
	Backend Backend
	// Target is the DSN, URI or path handed to the backend.
	Target string
}

// ParseLocator classifies a corpus locator. Anything that is not a database
// URL or an SQLite file name is a plain fingerprint file.
func ParseLocator(s string) Locator {
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Locator{Backend: BackendPostgres, Target: s}
	case strings.HasPrefix(lower, "mongodb://"), strings.HasPrefix(lower, "mongodb+srv://"):
		return Locator{Backend: BackendMongo, Target: s}
	case strings.HasPrefix(lower, "sqlite://"):
		return Locator{Backend: BackendSQLite, Target: s[len("sqlite://"):]}
	}
	switch strings.ToLower(filepath.Ext(s)) {
	case ".sqlite", ".sqlite3", ".db":
		return Locator{Backend: BackendSQLite, Target: s}
	}
	return Locator{Backend: BackendFile, Target: s}
}

// IsCorpus reports whether s names a corpus store rather than a fingerprint
// file.
func IsCorpus(s string) bool {
	return ParseLocator(s).Backend != BackendFile
}

// OpenStore connects to the store loc names. An SQLite corpus is only
// created when create is set; otherwise a missing file is
// storage.ErrCorpusNotFound.
func OpenStore(ctx context.Context, loc Locator, mongoDatabase string, create bool) (storage.Store, error) {
	var (
		store storage.Store
		err   error
	)
	switch loc.Backend {
	case BackendSQLite:
		var c *storage.DBClient
		if create {
			c, err = storage.NewDBClientWithPath(loc.Target)
		} else {
			c, err = storage.OpenDBClient(loc.Target)
		}
		if err == nil {
			store = c
		}
	case BackendPostgres:
		var c *storage.PostgresClient
		if c, err = storage.NewPostgresClient(ctx, loc.Target); err == nil {
			store = c
		}
	case BackendMongo:
		var c *storage.MongoClient
		if c, err = storage.NewMongoClient(ctx, loc.Target, mongoDatabase); err == nil {
			store = c
		}
	default:
		return nil, fmt.Errorf("%q is not a corpus locator", loc.Target)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s corpus: %w", loc.Backend, err)
	}
	return store, nil
}
