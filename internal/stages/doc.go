// Package stages defines the static registry of pipeline stages.
//
// The registry is a pure lookup table: an ordered list of stage
// descriptors with labels and review semantics. Referencing a stage the
// registry does not know is a programming error and panics rather than
// returning a recoverable error.
package stages
