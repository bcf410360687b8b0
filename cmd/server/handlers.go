package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/NoahNelson/Pipes/internal/config"
	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/pkg/logger"
	"github.com/NoahNelson/Pipes/pkg/pipes"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service pipes.Service
	config  *ServerConfig
	log     pipes.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Corpus         string
	Threshold      int
	AllowedOrigins []string
}

func NewServer(service pipes.Service, config *ServerConfig) *Server {
	return &Server{
		service: service,
		config:  config,
		log:     logger.GetLogger(),
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:     http.StatusText(statusCode),
		Message:   message,
		Code:      statusCode,
		RequestID: w.Header().Get(requestIDHeader),
	})
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": "Pipes API",
		"endpoints": map[string]string{
			"health":          "GET /health",
			"match":           "POST /api/match",
			"listRecordings":  "GET /api/recordings",
			"deleteRecording": "DELETE /api/recordings/{id}",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// handleMatch handles POST /api/match. The body is fingerprint text, one
// hash/offset pair per line; ?delim= selects the field delimiter.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var delim rune
	if d := r.URL.Query().Get("delim"); d != "" {
		parsed, err := config.ParseDelimiter(d)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		delim = parsed
	}

	body := http.MaxBytesReader(w, r.Body, MaxMatchBodyBytes)
	defer body.Close()

	res, err := s.service.MatchReader(r.Context(), body, delim)
	if err != nil {
		status, msg := matchErrorStatus(err)
		if status >= http.StatusInternalServerError {
			s.log.Errorf("[%s] Match failed: %v", requestID(r.Context()), err)
		}
		s.respondError(w, status, msg)
		return
	}

	resp := MatchResponse{
		Matched:    res.Matched,
		Threshold:  res.Threshold,
		Candidates: make([]CandidateDTO, len(res.Scores)),
		Count:      len(res.Scores),
	}
	for i, c := range res.Scores {
		resp.Candidates[i] = CandidateDTO(c)
	}
	if res.Best != nil {
		best := CandidateDTO(*res.Best)
		resp.Best = &best
	}

	s.respondJSON(w, http.StatusOK, resp)
}

// matchErrorStatus maps a match failure to an HTTP status and client message.
func matchErrorStatus(err error) (int, string) {
	var malformed *fingerprint.MalformedRecordError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &malformed):
		return http.StatusBadRequest, malformed.Error()
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("Body exceeds %d bytes", tooLarge.Limit)
	case errors.Is(err, pipes.ErrCorpusNotFound):
		return http.StatusServiceUnavailable, "Corpus has not been created"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "Match timed out"
	default:
		return http.StatusInternalServerError, "Failed to match snippet"
	}
}

// handleListRecordings handles GET /api/recordings
func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.service.ListRecordings(r.Context())
	if err != nil {
		s.log.Errorf("Failed to list recordings: %v", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to retrieve recordings")
		return
	}

	dtos := make([]RecordingDTO, len(recs))
	for i, rec := range recs {
		dtos[i] = RecordingDTO(rec)
	}

	s.respondJSON(w, http.StatusOK, ListRecordingsResponse{
		Recordings: dtos,
		Count:      len(dtos),
	})
}

// handleDeleteRecording handles DELETE /api/recordings/{id}
func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid recording ID")
		return
	}

	if err := s.service.DeleteRecording(r.Context(), id); err != nil {
		if errors.Is(err, pipes.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, fmt.Sprintf("Recording with ID %d not found", id))
			return
		}
		s.log.Errorf("Failed to delete recording %d: %v", id, err)
		s.respondError(w, http.StatusInternalServerError, "Failed to delete recording")
		return
	}

	s.respondJSON(w, http.StatusOK, DeleteRecordingResponse{
		Message: "Recording deleted successfully",
		ID:      id,
	})
}
