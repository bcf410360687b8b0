package fingerprint

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mdobak/go-xerrors"
)

// DefaultDelimiter separates the hash and offset fields of a fingerprint line.
const DefaultDelimiter = ','

// ErrFieldCount reports a line that does not hold exactly a hash and an offset.
var ErrFieldCount = xerrors.Message("wrong number of fields")

// Record is a single hash occurrence at a time offset within a recording.
type Record struct {
	Hash   uint32
	Offset int64
}

// Stream yields fingerprint records in order. Next returns io.EOF once the
// stream is exhausted.
type Stream interface {
	Next() (Record, error)
}

// MalformedRecordError is returned when a line cannot be parsed into a Record.
type MalformedRecordError struct {
	Line int // 1-based
	Text string
	Err  error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed fingerprint record on line %d (%q): %v", e.Line, e.Text, e.Err)
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// ParseRecord parses a single "hash<delim>offset" line. Whitespace around
// either field is ignored.
func ParseRecord(line string, delim rune) (Record, error) {
	fields := strings.Split(line, string(delim))
	if len(fields) != 2 {
		return Record{}, fmt.Errorf("%w: want 2, got %d", ErrFieldCount, len(fields))
	}

	hash, err := strconv.ParseUint(strings.TrimSpace(fields[0]), 10, 32)
	if err != nil {
		return Record{}, fmt.Errorf("hash: %w", err)
	}
	offset, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("offset: %w", err)
	}

	return Record{Hash: uint32(hash), Offset: offset}, nil
}

// Reader reads fingerprint records from delimited text, one record per line.
// Blank lines are skipped.
type Reader struct {
	scanner *bufio.Scanner
	delim   rune
	line    int
}

func NewReader(r io.Reader, delim rune) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: scanner, delim: delim}
}

// Next returns the next record, io.EOF at the end of input, or a
// *MalformedRecordError for a line that does not parse.
func (r *Reader) Next() (Record, error) {
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" {
			continue
		}
		rec, err := ParseRecord(text, r.delim)
		if err != nil {
			return Record{}, &MalformedRecordError{Line: r.line, Text: text, Err: err}
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Record{}, fmt.Errorf("reading fingerprints: %w", err)
	}
	return Record{}, io.EOF
}

// ReadAll drains s.
func ReadAll(s Stream) ([]Record, error) {
	var records []Record
	for {
		rec, err := s.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
}

// ReadFile parses every record of the fingerprint file at path.
func ReadFile(path string, delim rune) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening fingerprint file: %w", err)
	}
	defer f.Close()

	records, err := ReadAll(NewReader(f, delim))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// Write formats records in the delimited text format read by Reader.
func Write(w io.Writer, delim rune, records ...Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		if _, err := fmt.Fprintf(bw, "%d%c%d\n", rec.Hash, delim, rec.Offset); err != nil {
			return err
		}
	}
	return bw.Flush()
}

type sliceStream struct {
	records []Record
	pos     int
}

// FromSlice returns a Stream over an in-memory slice of records.
func FromSlice(records []Record) Stream {
	return &sliceStream{records: records}
}

func (s *sliceStream) Next() (Record, error) {
	if s.pos >= len(s.records) {
		return Record{}, io.EOF
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, nil
}
