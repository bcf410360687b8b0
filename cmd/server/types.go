package main

import "time"

// MaxMatchBodyBytes bounds the fingerprint text accepted by POST /api/match.
const MaxMatchBodyBytes = 64 << 20

// CandidateDTO is one recording's score in a match response
type CandidateDTO struct {
	ID     int64  `json:"id"`
	Name   string `json:"name,omitempty"`
	Count  int    `json:"count"`
	Offset int64  `json:"offset"`
}

// MatchResponse is the response for POST /api/match
type MatchResponse struct {
	Matched    bool           `json:"matched"`
	Best       *CandidateDTO  `json:"best,omitempty"`
	Threshold  int            `json:"threshold"`
	Candidates []CandidateDTO `json:"candidates"`
	Count      int            `json:"count"`
}

// RecordingDTO represents a recording in API responses
type RecordingDTO struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Fingerprints int       `json:"fingerprints"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListRecordingsResponse is the response for GET /api/recordings
type ListRecordingsResponse struct {
	Recordings []RecordingDTO `json:"recordings"`
	Count      int            `json:"count"`
}

// DeleteRecordingResponse is the response for DELETE /api/recordings/{id}
type DeleteRecordingResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      int    `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
