// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Training constants
const (
	// WorkerPoolSize is the default number of parallel encoder calls while training
	WorkerPoolSize = 4

	// MaxImageSize is the maximum dimension (width or height) sent to the encoder
	MaxImageSize = 1280
)

// Server constants
const (
	// ShutdownTimeout bounds graceful shutdown of the web server
	ShutdownTimeout = 30 * time.Second

	// ReloadTimeout bounds a gallery reload triggered from the CLI
	ReloadTimeout = 2 * time.Minute
)
