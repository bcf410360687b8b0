package pipes

import "time"

// PairwiseResult is the score of a snippet against a single master.
type PairwiseResult struct {
	Master  string `json:"master"`
	Snippet string `json:"snippet"`
	Score   int    `json:"score"` // size of the largest offset bin
}

// Candidate is one corpus recording's score against a snippet.
type Candidate struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Count  int    `json:"count"`
	Offset int64  `json:"offset"` // lower edge of the winning offset bin
}

// CorpusResult is the outcome of matching a snippet against a corpus. Best is
// only set when Matched is true.
type CorpusResult struct {
	Matched   bool        `json:"matched"`
	Best      *Candidate  `json:"best,omitempty"`
	Threshold int         `json:"threshold"`
	Scores    []Candidate `json:"scores"`
}

type IngestResult struct {
	RecordingID  int64  `json:"recording_id"`
	Name         string `json:"name"`
	Fingerprints int    `json:"fingerprints"`
}

type Recording struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Fingerprints int       `json:"fingerprints"`
	CreatedAt    time.Time `json:"created_at"`
}
