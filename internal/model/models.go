package model

import "time"

// Couple is one occurrence of a hash inside a known recording.
// Offset is the time offset of the occurrence in that recording.
type Couple struct {
	CandidateID int64
	Offset      int64
}

// Score is the match strength of one candidate recording.
type Score struct {
	CandidateID int64
	Count       int   // size of the largest offset bin
	Offset      int64 // lower bound of the largest bin: reference offset - query offset
}

// Recording is a known recording registered in a corpus store.
type Recording struct {
	ID           int64
	Name         string
	Fingerprints int
	CreatedAt    time.Time
}
