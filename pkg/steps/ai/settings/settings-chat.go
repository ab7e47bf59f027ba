package settings

import (
	_ "embed"
	"os"
	"path/filepath"
	"time"

	"github.com/huandu/go-clone"
	"github.com/jackzhu119/Gemini-clone/pkg/store"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// APIKeyEnvVars are checked in order for the Gemini credential.
var APIKeyEnvVars = []string{"GEMINI_API_KEY", "API_KEY"}

type ChatSettings struct {
	// APIKey is never written to config files.
	APIKey            string        `yaml:"-"`
	Model             string        `yaml:"model"`
	SystemInstruction string        `yaml:"system-instruction"`
	GoogleSearch      bool          `yaml:"google-search"`
	ErrorText         string        `yaml:"error-text"`
	StreamTimeout     time.Duration `yaml:"stream-timeout"`
	Store             store.Config  `yaml:"store"`
}

//go:embed "flags/chat.yaml"
var settingsYAML []byte

// NewChatSettings returns the built-in defaults.
func NewChatSettings() (*ChatSettings, error) {
	s := &ChatSettings{}
	if err := yaml.Unmarshal(settingsYAML, s); err != nil {
		return nil, errors.Wrap(err, "could not parse default settings")
	}
	return s, nil
}

func (s *ChatSettings) Clone() *ChatSettings {
	return clone.Clone(s).(*ChatSettings)
}

// APIKeyFromEnv returns the first non-empty credential from APIKeyEnvVars.
func APIKeyFromEnv() string {
	for _, k := range APIKeyEnvVars {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// DefaultStorePath is used when no store path is configured.
func DefaultStorePath(backend store.Backend) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	name := "sessions.json"
	if backend == store.BackendSQLite {
		name = "sessions.db"
	}
	return filepath.Join(dir, "gemini-chat", name)
}

// SetViperDefaults registers the built-in defaults with v so that config
// files, environment and flags layer on top of them.
func SetViperDefaults(v *viper.Viper) error {
	s, err := NewChatSettings()
	if err != nil {
		return err
	}
	v.SetDefault("model", s.Model)
	v.SetDefault("system-instruction", s.SystemInstruction)
	v.SetDefault("google-search", s.GoogleSearch)
	v.SetDefault("error-text", s.ErrorText)
	v.SetDefault("stream-timeout", s.StreamTimeout)
	v.SetDefault("store.backend", string(s.Store.Backend))
	v.SetDefault("store.path", s.Store.Path)
	v.SetDefault("store.key", s.Store.Key)
	return nil
}

// FromViper builds settings from the layered viper configuration and the
// credential in the environment.
func FromViper(v *viper.Viper) (*ChatSettings, error) {
	s, err := NewChatSettings()
	if err != nil {
		return nil, err
	}
	if v.IsSet("model") {
		s.Model = v.GetString("model")
	}
	if v.IsSet("system-instruction") {
		s.SystemInstruction = v.GetString("system-instruction")
	}
	if v.IsSet("google-search") {
		s.GoogleSearch = v.GetBool("google-search")
	}
	if v.IsSet("error-text") {
		s.ErrorText = v.GetString("error-text")
	}
	if v.IsSet("stream-timeout") {
		s.StreamTimeout = v.GetDuration("stream-timeout")
	}
	if v.IsSet("store.backend") {
		s.Store.Backend = store.Backend(v.GetString("store.backend"))
	}
	if v.IsSet("store.path") {
		s.Store.Path = v.GetString("store.path")
	}
	if v.IsSet("store.key") {
		s.Store.Key = v.GetString("store.key")
	}

	s.APIKey = v.GetString("api-key")
	if s.APIKey == "" {
		s.APIKey = APIKeyFromEnv()
	}
	if s.Store.Path == "" && s.Store.Backend != store.BackendMemory {
		s.Store.Path = DefaultStorePath(s.Store.Backend)
	}

	if s.Model == "" {
		return nil, errors.New("no model configured")
	}
	if s.StreamTimeout < 0 {
		return nil, errors.Errorf("stream-timeout must not be negative, got %s", s.StreamTimeout)
	}
	return s, nil
}
