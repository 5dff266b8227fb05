// Package logging provides the minimal logging interface used across crewmesh
// and adapters for it.
//
// The Logger interface defines the structured logging methods (Debug, Info,
// Warn, Error) that the engine, supervisor, agents and tools use. This package
// includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - New, building a JSON or text slog handler from a Config
//   - NoOpLogger for silent operation (tests, embedding)
//
// Usage:
//
//	logger := logging.New(logging.Config{Level: logging.LevelDebug, Format: "text"})
//	eng := engine.New(roster, func(o *engine.Options) { o.Logger = logger })
package logging
