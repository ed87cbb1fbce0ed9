// Package services defines shared utilities consumed by the dump engine and
// the CLI.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, device paths, and dump phases
//     for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the dump error taxonomy and CLI exit codes.
//
// Use these helpers when wiring new dump phases so operational behaviour
// (error handling, observability) stays uniform across the engine.
package services
