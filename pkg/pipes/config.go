package pipes

import (
	"github.com/NoahNelson/Pipes/internal/config"
	"github.com/NoahNelson/Pipes/internal/storage"
)

type Config struct {
	Settings config.Settings
	Logger   Logger
	Store    storage.Store
}

type Option func(*Config)

// WithCorpus sets the corpus locator used by corpus operations.
func WithCorpus(locator string) Option {
	return func(c *Config) {
		c.Settings.Corpus = locator
	}
}

// WithSettings replaces all matcher and corpus settings.
func WithSettings(s config.Settings) Option {
	return func(c *Config) {
		c.Settings = s
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithStore makes corpus operations use store instead of opening the corpus
// locator. The service takes ownership and closes it on Close.
func WithStore(store storage.Store) Option {
	return func(c *Config) {
		c.Store = store
	}
}

func defaultConfig() *Config {
	return &Config{
		Settings: config.Default(),
	}
}
