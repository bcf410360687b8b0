package lookup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/internal/model"
)

const master = "42,10\n7,5\n42,110\n9,1\n"

func TestStreamLookup(t *testing.T) {
	s := NewStream(strings.NewReader(master), ',', 0)
	ctx := context.Background()

	got, err := s.Lookup(ctx, 42)
	require.NoError(t, err)
	want := []model.Couple{{CandidateID: 0, Offset: 10}, {CandidateID: 0, Offset: 110}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lookup(42) mismatch (-want +got):\n%s", diff)
	}

	// A second lookup must see the whole stream again.
	got, err = s.Lookup(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, []model.Couple{{CandidateID: 0, Offset: 1}}, got)

	got, err = s.Lookup(ctx, 1234)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStreamRewindsAfterFailure(t *testing.T) {
	rs := strings.NewReader("42,10\nbroken\n")
	s := NewStream(rs, ',', 3)

	_, err := s.Lookup(context.Background(), 42)
	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, uint32(42), lerr.Hash)

	var malformed *fingerprint.MalformedRecordError
	assert.True(t, errors.As(err, &malformed), "cause should be the malformed record")

	pos, err := rs.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Zero(t, pos, "stream should be rewound after a failed lookup")
}

func TestStreamCancelled(t *testing.T) {
	s := NewStream(strings.NewReader(master), ',', 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Lookup(ctx, 42)
	assert.ErrorIs(t, err, context.Canceled)
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "master.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileLookup(t *testing.T) {
	f, err := OpenFile(writeFile(t, master), ',')
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := f.Lookup(ctx, 42)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	}
}

func TestFileConcurrentLookups(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 1000; i++ {
		require.NoError(t, fingerprint.Write(&sb, ',', fingerprint.Record{Hash: uint32(i % 10), Offset: int64(i)}))
	}
	f, err := OpenFile(writeFile(t, sb.String()), ',')
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	var wg sync.WaitGroup
	for h := uint32(0); h < 10; h++ {
		wg.Add(1)
		go func(h uint32) {
			defer wg.Done()
			got, err := f.Lookup(context.Background(), h)
			assert.NoError(t, err)
			assert.Len(t, got, 100)
		}(h)
	}
	wg.Wait()
}

func TestFileEmpty(t *testing.T) {
	f, err := OpenFile(writeFile(t, ""), ',')
	require.NoError(t, err)

	got, err := f.Lookup(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, f.Close())
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "nope.csv"), ',')
	assert.Error(t, err)
}

func TestMemoryLookup(t *testing.T) {
	m := NewMemory()
	m.Add(1, fingerprint.Record{Hash: 42, Offset: 10}, fingerprint.Record{Hash: 42, Offset: 110})
	m.Add(2, fingerprint.Record{Hash: 7, Offset: 9999})
	assert.Equal(t, 3, m.Len())

	got, err := m.Lookup(context.Background(), 42)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.Couple{{CandidateID: 1, Offset: 10}, {CandidateID: 1, Offset: 110}}, got)

	got, err = m.Lookup(context.Background(), 8)
	require.NoError(t, err)
	assert.Empty(t, got)
}

type failingStore struct{ err error }

func (s failingStore) CouplesByHash(context.Context, uint32) ([]model.Couple, error) {
	return nil, s.err
}

type mapStore map[uint32][]model.Couple

func (s mapStore) CouplesByHash(_ context.Context, hash uint32) ([]model.Couple, error) {
	return s[hash], nil
}

func TestIndexed(t *testing.T) {
	l := NewIndexed("test", mapStore{5: {{CandidateID: 9, Offset: 3}}})
	got, err := l.Lookup(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []model.Couple{{CandidateID: 9, Offset: 3}}, got)
	assert.Equal(t, "test", l.String())
}

func TestIndexedWrapsFailure(t *testing.T) {
	cause := errors.New("connection refused")
	l := NewIndexed("postgres", failingStore{err: cause})

	_, err := l.Lookup(context.Background(), 77)
	require.Error(t, err)

	var lerr *Error
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "postgres", lerr.Backend)
	assert.Equal(t, uint32(77), lerr.Hash)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "postgres lookup of hash 77")
}
