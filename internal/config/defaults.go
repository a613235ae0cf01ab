package config

import (
	"time"

	"github.com/hyperjump/docchat/internal/chat"
)

// DefaultBaseURL is the backend origin used when none is configured.
const DefaultBaseURL = "http://localhost:8080"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBaseURL
	}
	if cfg.Backend.RequestTimeout < 0 {
		cfg.Backend.RequestTimeout = 0
	}
	if cfg.Upload.DropDirectory == "" {
		cfg.Upload.DropDirectory = "./inbox"
	}
	if cfg.Upload.DropSettle == 0 {
		cfg.Upload.DropSettle = 400 * time.Millisecond
	}
	if cfg.Chat.Suggestions == nil {
		cfg.Chat.Suggestions = append([]string(nil), chat.DefaultSuggestions...)
	}
	if cfg.Chat.ShowTimestamps == nil {
		t := true
		cfg.Chat.ShowTimestamps = &t
	}
}
