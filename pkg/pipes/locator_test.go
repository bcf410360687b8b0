package pipes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLocator(t *testing.T) {
	tests := []struct {
		in      string
		backend Backend
		target  string
	}{
		{"postgres://user@localhost/pipes", BackendPostgres, "postgres://user@localhost/pipes"},
		{"postgresql://localhost/pipes?sslmode=disable", BackendPostgres, "postgresql://localhost/pipes?sslmode=disable"},
		{"mongodb://localhost:27017", BackendMongo, "mongodb://localhost:27017"},
		{"mongodb+srv://cluster.example.net", BackendMongo, "mongodb+srv://cluster.example.net"},
		{"sqlite://data/corpus", BackendSQLite, "data/corpus"},
		{"corpus.sqlite", BackendSQLite, "corpus.sqlite"},
		{"corpus.SQLITE3", BackendSQLite, "corpus.SQLITE3"},
		{"/var/lib/pipes/fp.db", BackendSQLite, "/var/lib/pipes/fp.db"},
		{"master.csv", BackendFile, "master.csv"},
		{"master", BackendFile, "master"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc := ParseLocator(tt.in)
			assert.Equal(t, tt.backend, loc.Backend)
			assert.Equal(t, tt.target, loc.Target)
			assert.Equal(t, tt.backend != BackendFile, IsCorpus(tt.in))
		})
	}
}

func TestOpenStoreRejectsFile(t *testing.T) {
	_, err := OpenStore(context.Background(), ParseLocator("master.csv"), "", false)
	assert.Error(t, err)
}
