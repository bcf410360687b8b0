package lookup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/edsrzf/mmap-go"

	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/internal/model"
)

// ctxCheckInterval is how many records a scan reads between context checks.
const ctxCheckInterval = 4096

// Stream answers lookups by scanning a rewindable fingerprint stream of a
// single recording from start to end. The read position is shared, so calls
// are serialized, and it is reset to the start after every call.
type Stream struct {
	mu          sync.Mutex
	rs          io.ReadSeeker
	delim       rune
	candidateID int64
}

// NewStream returns a Stream over rs. Every couple it returns carries
// candidateID.
func NewStream(rs io.ReadSeeker, delim rune, candidateID int64) *Stream {
	return &Stream{rs: rs, delim: delim, candidateID: candidateID}
}

func (s *Stream) Lookup(ctx context.Context, hash uint32) ([]model.Couple, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.rs.Seek(0, io.SeekStart); err != nil {
		return nil, &Error{Backend: "stream", Hash: hash, Err: fmt.Errorf("rewinding: %w", err)}
	}
	couples, err := scan(ctx, fingerprint.NewReader(s.rs, s.delim), hash, s.candidateID)
	if _, serr := s.rs.Seek(0, io.SeekStart); serr != nil && err == nil {
		err = fmt.Errorf("rewinding: %w", serr)
	}
	if err != nil {
		return nil, &Error{Backend: "stream", Hash: hash, Err: err}
	}
	return couples, nil
}

// File is a stream lookup over a read-only memory map of a fingerprint file.
// Each call scans its own reader over the mapping, so calls may run
// concurrently.
type File struct {
	path  string
	f     *os.File
	data  mmap.MMap
	delim rune
}

// OpenFile maps the fingerprint file at path. Couples it returns carry
// candidate ID 0.
func OpenFile(path string, delim rune) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening reference fingerprints: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat reference fingerprints: %w", err)
	}

	file := &File{path: path, f: f, delim: delim}
	// Mapping a zero-length file fails; an empty reference simply never matches.
	if info.Size() > 0 {
		data, err := mmap.Map(f, mmap.RDONLY, 0)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("mapping %s: %w", path, err)
		}
		file.data = data
	}
	return file, nil
}

func (m *File) Lookup(ctx context.Context, hash uint32) ([]model.Couple, error) {
	couples, err := scan(ctx, fingerprint.NewReader(bytes.NewReader(m.data), m.delim), hash, 0)
	if err != nil {
		return nil, &Error{Backend: m.path, Hash: hash, Err: err}
	}
	return couples, nil
}

func (m *File) Close() error {
	var errs []error
	if m.data != nil {
		errs = append(errs, m.data.Unmap())
		m.data = nil
	}
	if m.f != nil {
		errs = append(errs, m.f.Close())
		m.f = nil
	}
	return errors.Join(errs...)
}

func scan(ctx context.Context, r *fingerprint.Reader, hash uint32, candidateID int64) ([]model.Couple, error) {
	var couples []model.Couple
	for n := 0; ; n++ {
		if n%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return couples, nil
		}
		if err != nil {
			return nil, err
		}
		if rec.Hash == hash {
			couples = append(couples, model.Couple{CandidateID: candidateID, Offset: rec.Offset})
		}
	}
}
