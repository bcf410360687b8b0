package lookup

import (
	"context"

	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/internal/model"
)

// Memory is an in-memory hash index over any number of recordings.
// It must not be modified while lookups are running.
type Memory struct {
	index map[uint32][]model.Couple
	n     int
}

func NewMemory() *Memory {
	return &Memory{index: make(map[uint32][]model.Couple)}
}

// Add indexes the records of one recording under candidateID.
func (m *Memory) Add(candidateID int64, records ...fingerprint.Record) {
	for _, rec := range records {
		m.index[rec.Hash] = append(m.index[rec.Hash], model.Couple{
			CandidateID: candidateID,
			Offset:      rec.Offset,
		})
	}
	m.n += len(records)
}

// Len returns the number of indexed records.
func (m *Memory) Len() int {
	return m.n
}

func (m *Memory) Lookup(ctx context.Context, hash uint32) ([]model.Couple, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Backend: "memory", Hash: hash, Err: err}
	}
	return m.index[hash], nil
}
