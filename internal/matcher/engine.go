// Package matcher finds a fingerprint snippet inside known recordings by
// histogramming the time offsets between matching hashes. A true match piles
// up deltas in a single bin; unrelated recordings scatter them.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/mdobak/go-xerrors"
	"golang.org/x/sync/errgroup"

	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/internal/model"
)

const (
	DefaultBinSize   = 5
	DefaultThreshold = 100
)

// Lookup returns every (candidate, offset) pair sharing a hash. An empty
// result means the hash is not in the corpus.
type Lookup interface {
	Lookup(ctx context.Context, hash uint32) ([]model.Couple, error)
}

type Logger interface {
	Debugf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}

type Config struct {
	BinSize   int64
	Threshold int // a best match must score strictly above this
	Workers   int // concurrent lookups; 1 runs everything on the caller's goroutine
	Logger    Logger
}

type Option func(*Config)

func WithBinSize(size int64) Option {
	return func(c *Config) {
		c.BinSize = size
	}
}

func WithThreshold(threshold int) Option {
	return func(c *Config) {
		c.Threshold = threshold
	}
}

func WithWorkers(n int) Option {
	return func(c *Config) {
		c.Workers = n
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// Engine runs match operations. It holds no state between runs and is safe
// for concurrent use.
type Engine struct {
	cfg Config
}

func New(opts ...Option) (*Engine, error) {
	cfg := Config{
		BinSize:   DefaultBinSize,
		Threshold: DefaultThreshold,
		Workers:   1,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.BinSize <= 0 {
		return nil, fmt.Errorf("bin size must be positive, got %d", cfg.BinSize)
	}
	if cfg.Threshold < 0 {
		return nil, fmt.Errorf("threshold must not be negative, got %d", cfg.Threshold)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}

	return &Engine{cfg: cfg}, nil
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Result is the outcome of a corpus match. Best is only meaningful when
// Matched is true.
type Result struct {
	Best    model.Score
	Matched bool
	Scores  []model.Score // every candidate that shared a hash, by ascending ID
}

// MatchPairwise scores query against a single reference recording and
// returns the raw size of the largest offset bin. No threshold is applied.
func (e *Engine) MatchPairwise(ctx context.Context, query fingerprint.Stream, reference Lookup) (int, error) {
	hists, err := e.accumulate(ctx, query, reference, true)
	if err != nil {
		return 0, err
	}
	if h, ok := hists[0]; ok {
		return h.LargestBin(), nil
	}
	return 0, nil
}

// Scores returns the score of every candidate that shares at least one hash
// with query, ordered by ascending candidate ID.
func (e *Engine) Scores(ctx context.Context, query fingerprint.Stream, corpus Lookup) ([]model.Score, error) {
	hists, err := e.accumulate(ctx, query, corpus, false)
	if err != nil {
		return nil, err
	}

	scores := make([]model.Score, 0, len(hists))
	for id, h := range hists {
		scores = append(scores, model.Score{
			CandidateID: id,
			Count:       h.LargestBin(),
			Offset:      h.PeakOffset(),
		})
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].CandidateID < scores[j].CandidateID })
	return scores, nil
}

// MatchCorpus scores every candidate and picks the best one with Select.
func (e *Engine) MatchCorpus(ctx context.Context, query fingerprint.Stream, corpus Lookup) (Result, error) {
	scores, err := e.Scores(ctx, query, corpus)
	if err != nil {
		return Result{}, err
	}
	best, ok := Select(scores, e.cfg.Threshold)
	return Result{Best: best, Matched: ok, Scores: scores}, nil
}

// Select returns the candidate with the largest count, preferring the lowest
// candidate ID on ties. It reports false when there are no scores or the best
// count does not exceed threshold.
func Select(scores []model.Score, threshold int) (model.Score, bool) {
	var best model.Score
	found := false
	for _, s := range scores {
		if !found || s.Count > best.Count || (s.Count == best.Count && s.CandidateID < best.CandidateID) {
			best = s
			found = true
		}
	}
	if !found || best.Count <= threshold {
		return model.Score{}, false
	}
	return best, true
}

// tally owns the histograms of one run.
type tally struct {
	mu      sync.Mutex
	binSize int64
	global  bool // pairwise: every delta goes into one histogram
	hists   map[int64]*Histogram
}

func (t *tally) add(rec fingerprint.Record, couples []model.Couple) {
	if len(couples) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range couples {
		id := c.CandidateID
		if t.global {
			id = 0
		}
		h, ok := t.hists[id]
		if !ok {
			h = NewHistogram(t.binSize)
			t.hists[id] = h
		}
		h.Add(c.Offset - rec.Offset)
	}
}

func (e *Engine) accumulate(ctx context.Context, query fingerprint.Stream, lk Lookup, global bool) (map[int64]*Histogram, error) {
	t := &tally{
		binSize: e.cfg.BinSize,
		global:  global,
		hists:   make(map[int64]*Histogram),
	}

	var (
		n   int
		err error
	)
	if e.cfg.Workers > 1 {
		n, err = e.runParallel(ctx, query, lk, t)
	} else {
		n, err = e.runSequential(ctx, query, lk, t)
	}
	if err != nil {
		e.cfg.Logger.Debugf("match aborted after %d query records: %v", n, err)
		return nil, xerrors.WithStackTrace(err, 1)
	}

	e.cfg.Logger.Debugf("matched %d query records, %d candidates", n, len(t.hists))
	return t.hists, nil
}

func (e *Engine) runSequential(ctx context.Context, query fingerprint.Stream, lk Lookup, t *tally) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rec, err := query.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}

		couples, err := lk.Lookup(ctx, rec.Hash)
		if err != nil {
			return n, err
		}
		t.add(rec, couples)
		n++
	}
}

// runParallel reads the query on the calling goroutine and fans lookups out
// to at most Workers goroutines. The first failure cancels the rest.
func (e *Engine) runParallel(ctx context.Context, query fingerprint.Stream, lk Lookup, t *tally) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	n := 0
	var readErr error
	for gctx.Err() == nil {
		rec, err := query.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = err
			break
		}

		g.Go(func() error {
			couples, err := lk.Lookup(gctx, rec.Hash)
			if err != nil {
				return err
			}
			t.add(rec, couples)
			return nil
		})
		n++
	}

	if err := g.Wait(); err != nil {
		return n, err
	}
	if readErr != nil {
		return n, readErr
	}
	return n, ctx.Err()
}
