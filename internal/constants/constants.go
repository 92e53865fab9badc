// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures the CLI and the API behave the same.
package constants

// Detector fan-out constants
const (
	// DefaultDetectConcurrency is the default number of parallel detector requests
	// for multi-image enrollment
	DefaultDetectConcurrency = 4
)

// Shutdown constants
const (
	// ShutdownTimeoutSeconds bounds how long in-flight requests may drain on shutdown
	ShutdownTimeoutSeconds = 30
)
