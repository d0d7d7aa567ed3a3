// Package textutil sanitizes user-supplied strings before they become
// filesystem path segments. Artifact directories and filenames are
// derived from output titles and provider responses, neither of which
// can be trusted to be path-safe.
package textutil
