// Package logging builds the slog loggers used across loom.
//
// It provides console and JSON handlers, typed attribute helpers, and
// context-derived fields (output id, stage, correlation id) so every
// component logs the same structured vocabulary.
package logging
