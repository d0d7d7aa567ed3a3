// Package services defines shared utilities consumed by the pipeline
// controller, the stage executor, and external provider integrations.
//
// Key responsibilities:
//   - Context helpers that stamp output IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate
//     failures into consistent gate feedback classifications.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the
// pipeline.
package services
