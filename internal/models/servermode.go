package models

import (
	"encoding/json"
	"time"
)

// ServerModeID is the fixed primary key of the singleton row.
const ServerModeID = 1

// ServerMode controls the application's difficulty and limits. Exactly one
// row exists once initialised.
type ServerMode struct {
	ID        int64     `json:"id"`
	Mode      string    `json:"mode"`
	UpdatedAt time.Time `json:"updated_at"`
	// RateLimit is the number of requests per minute allowed in hard mode.
	RateLimit        int             `json:"rate_limit"`
	MaxPasteSize     int             `json:"max_paste_size"`
	MaxFileSize      int             `json:"max_file_size"`
	AllowedFileTypes string          `json:"allowed_file_types"`
	LogLevel         string          `json:"log_level"`
	SecurityConfig   json.RawMessage `json:"security_config,omitempty"`
}

// DefaultServerMode returns the settings used when no row exists yet.
func DefaultServerMode() ServerMode {
	return ServerMode{
		ID:               ServerModeID,
		Mode:             ModeEasy,
		RateLimit:        100,
		MaxPasteSize:     1 << 20,
		MaxFileSize:      5 << 20,
		AllowedFileTypes: "txt,pdf,png,jpg",
		LogLevel:         "INFO",
	}
}

// ValidMode reports whether mode is a known difficulty.
func ValidMode(mode string) bool {
	return mode == ModeEasy || mode == ModeHard
}
