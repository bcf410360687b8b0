// Package config resolves matcher settings from defaults, an optional TOML or
// JSON file, a .env file and PIPES_* environment variables. Command-line flags
// are applied last by the caller.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"

	"github.com/NoahNelson/Pipes/internal/fingerprint"
	"github.com/NoahNelson/Pipes/internal/matcher"
	"github.com/NoahNelson/Pipes/internal/storage"
)

var (
	ErrUnknownFormat = xerrors.Message("unknown config file format")
	ErrInvalidJSON   = xerrors.Message("invalid JSON config")
)

type Settings struct {
	BinSize       int64
	Threshold     int
	Delimiter     rune
	Workers       int
	// Timeout bounds a single match run. Zero means no limit.
	Timeout       time.Duration
	Corpus        string
	MongoDatabase string
}

// fileSettings mirrors Settings with the fields that need parsing kept as text.
type fileSettings struct {
	BinSize       *int64  `toml:"bin_size"`
	Threshold     *int    `toml:"threshold"`
	Delimiter     *string `toml:"delimiter"`
	Workers       *int    `toml:"workers"`
	Timeout       *string `toml:"timeout"`
	Corpus        *string `toml:"corpus"`
	MongoDatabase *string `toml:"mongo_database"`
}

func Default() Settings {
	return Settings{
		BinSize:       matcher.DefaultBinSize,
		Threshold:     matcher.DefaultThreshold,
		Delimiter:     fingerprint.DefaultDelimiter,
		Workers:       1,
		Corpus:        storage.DefaultDBFile,
		MongoDatabase: storage.DefaultMongoDatabase,
	}
}

// Load builds settings from defaults, then path (if non-empty), then the
// environment.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		if err := s.LoadFile(path); err != nil {
			return s, err
		}
	}
	if err := s.LoadEnv(); err != nil {
		return s, err
	}
	return s, s.Validate()
}

// LoadFile overlays the keys present in a .toml or .json file.
func (s *Settings) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	var fs fileSettings
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &fs); err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".json":
		if !gjson.ValidBytes(data) {
			return fmt.Errorf("%s: %w", path, ErrInvalidJSON)
		}
		fs = jsonSettings(gjson.ParseBytes(data))
	default:
		return fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}

	if err := s.apply(fs); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func jsonSettings(doc gjson.Result) fileSettings {
	var fs fileSettings
	if v := doc.Get("bin_size"); v.Exists() {
		n := v.Int()
		fs.BinSize = &n
	}
	if v := doc.Get("threshold"); v.Exists() {
		n := int(v.Int())
		fs.Threshold = &n
	}
	if v := doc.Get("workers"); v.Exists() {
		n := int(v.Int())
		fs.Workers = &n
	}
	for key, dst := range map[string]**string{
		"delimiter":      &fs.Delimiter,
		"timeout":        &fs.Timeout,
		"corpus":         &fs.Corpus,
		"mongo_database": &fs.MongoDatabase,
	} {
		if v := doc.Get(key); v.Exists() {
			str := v.String()
			*dst = &str
		}
	}
	return fs
}

func (s *Settings) apply(fs fileSettings) error {
	if fs.BinSize != nil {
		s.BinSize = *fs.BinSize
	}
	if fs.Threshold != nil {
		s.Threshold = *fs.Threshold
	}
	if fs.Workers != nil {
		s.Workers = *fs.Workers
	}
	if fs.Corpus != nil {
		s.Corpus = *fs.Corpus
	}
	if fs.MongoDatabase != nil {
		s.MongoDatabase = *fs.MongoDatabase
	}
	if fs.Delimiter != nil {
		d, err := ParseDelimiter(*fs.Delimiter)
		if err != nil {
			return err
		}
		s.Delimiter = d
	}
	if fs.Timeout != nil {
		d, err := time.ParseDuration(*fs.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		s.Timeout = d
	}
	return nil
}

// LoadEnv reads .env from the working directory if present, then overlays
// PIPES_BIN_SIZE, PIPES_THRESHOLD, PIPES_DELIMITER, PIPES_WORKERS,
// PIPES_TIMEOUT, PIPES_CORPUS and PIPES_MONGO_DATABASE.
func (s *Settings) LoadEnv() error {
	_ = godotenv.Load()

	var fs fileSettings
	if v, ok := os.LookupEnv("PIPES_BIN_SIZE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("PIPES_BIN_SIZE: %w", err)
		}
		fs.BinSize = &n
	}
	for name, dst := range map[string]**int{
		"PIPES_THRESHOLD": &fs.Threshold,
		"PIPES_WORKERS":   &fs.Workers,
	} {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = &n
	}
	for name, dst := range map[string]**string{
		"PIPES_DELIMITER":      &fs.Delimiter,
		"PIPES_TIMEOUT":        &fs.Timeout,
		"PIPES_CORPUS":         &fs.Corpus,
		"PIPES_MONGO_DATABASE": &fs.MongoDatabase,
	} {
		if v, ok := os.LookupEnv(name); ok {
			*dst = &v
		}
	}
	return s.apply(fs)
}

func (s Settings) Validate() error {
	switch {
	case s.BinSize <= 0:
		return fmt.Errorf("bin size must be positive, got %d", s.BinSize)
	case s.Threshold < 0:
		return fmt.Errorf("threshold must not be negative, got %d", s.Threshold)
	case s.Workers <= 0:
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	case s.Timeout < 0:
		return fmt.Errorf("timeout must not be negative, got %s", s.Timeout)
	case s.Delimiter == 0 || s.Delimiter == '\n' || s.Delimiter == utf8.RuneError:
		return fmt.Errorf("invalid delimiter %q", s.Delimiter)
	}
	return nil
}

// ParseDelimiter accepts "tab" or a literal "\t" for tab-separated input and
// otherwise exactly one character.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "tab", `\t`:
		return '\t', nil
	case "comma":
		return ',', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if s == "" || size != len(s) || r == utf8.RuneError || r == '\n' {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r, nil
}
