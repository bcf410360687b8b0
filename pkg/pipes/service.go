// Package pipes matches fingerprint snippets against a master recording or a
// corpus of recordings. The corpus may live in SQLite, PostgreSQL or MongoDB
// and is chosen by a locator string.
package pipes

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/internal/lookup"
	"github.com/NoahNelson/Pipes/internal/matcher"
	"github.com/NoahNelson/Pipes/internal/storage"
	"github.com/NoahNelson/Pipes/pkg/logger"
)

// pipesService is the default implementation of the Service interface.
type pipesService struct {
	cfg    *Config
	log    Logger
	engine *matcher.Engine

	mu    sync.Mutex
	store storage.Store
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	engine, err := matcher.New(
		matcher.WithBinSize(cfg.Settings.BinSize),
		matcher.WithThreshold(cfg.Settings.Threshold),
		matcher.WithWorkers(cfg.Settings.Workers),
		matcher.WithLogger(cfg.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}

	return &pipesService{
		cfg:    cfg,
		log:    cfg.Logger,
		engine: engine,
		store:  cfg.Store,
	}, nil
}

// withTimeout bounds one operation by the configured timeout, if any.
func (s *pipesService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Settings.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Settings.Timeout)
	}
	return context.WithCancel(ctx)
}

// corpus returns the open store, connecting to the configured locator on
// first use.
func (s *pipesService) corpus(ctx context.Context, create bool) (storage.Store, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loc := ParseLocator(s.cfg.Settings.Corpus)
	if s.store != nil {
		return s.store, loc.Backend.String(), nil
	}
	if loc.Backend == BackendFile {
		return nil, "", fmt.Errorf("corpus %q: not a database locator", s.cfg.Settings.Corpus)
	}

	store, err := OpenStore(ctx, loc, s.cfg.Settings.MongoDatabase, create)
	if err != nil {
		return nil, "", err
	}
	s.log.Debugf("Opened %s corpus", loc.Backend)
	s.store = store
	return store, loc.Backend.String(), nil
}

func (s *pipesService) MatchFiles(ctx context.Context, snippetPath, masterPath string) (PairwiseResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	snippet, err := os.Open(snippetPath)
	if err != nil {
		return PairwiseResult{}, fmt.Errorf("opening snippet: %w", err)
	}
	defer snippet.Close()

	master, err := lookup.OpenFile(masterPath, s.cfg.Settings.Delimiter)
	if err != nil {
		return PairwiseResult{}, fmt.Errorf("opening master: %w", err)
	}
	defer master.Close()

	score, err := s.engine.MatchPairwise(ctx, fingerprint.NewReader(snippet, s.cfg.Settings.Delimiter), master)
	if err != nil {
		return PairwiseResult{}, fmt.Errorf("matching %s against %s: %w", snippetPath, masterPath, err)
	}

	s.log.Debugf("Pairwise score %d for %s against %s", score, snippetPath, masterPath)
	return PairwiseResult{Master: masterPath, Snippet: snippetPath, Score: score}, nil
}

func (s *pipesService) MatchCorpus(ctx context.Context, snippetPath string) (CorpusResult, error) {
	f, err := os.Open(snippetPath)
	if err != nil {
		return CorpusResult{}, fmt.Errorf("opening snippet: %w", err)
	}
	defer f.Close()

	return s.MatchReader(ctx, f, s.cfg.Settings.Delimiter)
}

func (s *pipesService) MatchReader(ctx context.Context, r io.Reader, delim rune) (CorpusResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if delim == 0 {
		delim = s.cfg.Settings.Delimiter
	}

	store, backend, err := s.corpus(ctx, false)
	if err != nil {
		return CorpusResult{}, err
	}

	res, err := s.engine.MatchCorpus(ctx, fingerprint.NewReader(r, delim), lookup.NewIndexed(backend, store))
	if err != nil {
		return CorpusResult{}, fmt.Errorf("matching against corpus: %w", err)
	}

	out := CorpusResult{
		Matched:   res.Matched,
		Threshold: s.cfg.Settings.Threshold,
		Scores:    make([]Candidate, 0, len(res.Scores)),
	}

	names := s.recordingNames(ctx, store, len(res.Scores))
	for _, sc := range res.Scores {
		out.Scores = append(out.Scores, Candidate{
			ID:     sc.CandidateID,
			Name:   names[sc.CandidateID],
			Count:  sc.Count,
			Offset: sc.Offset,
		})
	}
	if res.Matched {
		best := Candidate{
			ID:     res.Best.CandidateID,
			Name:   names[res.Best.CandidateID],
			Count:  res.Best.Count,
			Offset: res.Best.Offset,
		}
		out.Best = &best
		s.log.Infof("Matched recording %d (%s) with %d aligned hashes", best.ID, best.Name, best.Count)
	} else {
		s.log.Infof("No match among %d candidates", len(res.Scores))
	}

	return out, nil
}

// recordingNames maps recording IDs to names. Names are decoration only, so
// a failure is logged and the scores are returned without them.
func (s *pipesService) recordingNames(ctx context.Context, store storage.Store, candidates int) map[int64]string {
	names := make(map[int64]string)
	if candidates == 0 {
		return names
	}
	recs, err := store.ListRecordings(ctx)
	if err != nil {
		s.log.Warnf("Failed to load recording names: %v", err)
		return names
	}
	for _, r := range recs {
		names[r.ID] = r.Name
	}
	return names
}

// Ingest stores the fingerprints in path under the recording called name,
// creating the recording if needed. An empty name uses the file's base name.
func (s *pipesService) Ingest(ctx context.Context, path, name string) (IngestResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if strings.TrimSpace(name) == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	records, err := fingerprint.ReadFile(path, s.cfg.Settings.Delimiter)
	if err != nil {
		return IngestResult{}, err
	}

	store, _, err := s.corpus(ctx, true)
	if err != nil {
		return IngestResult{}, err
	}

	id, err := store.RegisterRecording(ctx, name)
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to register recording: %w", err)
	}

	if err := store.StoreFingerprints(ctx, id, records); err != nil {
		return IngestResult{}, fmt.Errorf("failed to store fingerprints: %w", err)
	}

	s.log.Infof("Ingested %d fingerprints into recording %d (%s)", len(records), id, name)
	return IngestResult{RecordingID: id, Name: name, Fingerprints: len(records)}, nil
}

func (s *pipesService) ListRecordings(ctx context.Context) ([]Recording, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	store, _, err := s.corpus(ctx, false)
	if err != nil {
		return nil, err
	}

	recs, err := store.ListRecordings(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Recording, 0, len(recs))
	for _, r := range recs {
		out = append(out, Recording{ID: r.ID, Name: r.Name, Fingerprints: r.Fingerprints, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (s *pipesService) DeleteRecording(ctx context.Context, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	store, _, err := s.corpus(ctx, false)
	if err != nil {
		return err
	}
	if err := store.DeleteRecording(ctx, id); err != nil {
		return err
	}
	s.log.Infof("Deleted recording %d", id)
	return nil
}

// Close releases the corpus connection, if one was opened.
func (s *pipesService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}
