package store

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Backend string

const (
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

type Config struct {
	Backend Backend `yaml:"backend" mapstructure:"backend"`
	Path    string  `yaml:"path" mapstructure:"path"`
	Key     string  `yaml:"key" mapstructure:"key"`
}

// Open returns the store selected by cfg. The returned close function is
// never nil.
func Open(cfg Config) (SessionStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case BackendFile, "":
		s, err := NewFileStore(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		log.Debug().Str("path", s.Path()).Msg("Using file session store")
		return s, noop, nil
	case BackendSQLite:
		s, err := NewSQLiteStore(cfg.Path, cfg.Key)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case BackendMemory:
		return NewMemoryStore(), noop, nil
	default:
		return nil, noop, errors.Errorf("unknown store backend %q", cfg.Backend)
	}
}
