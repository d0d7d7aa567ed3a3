// Package api exposes the pipeline's logical operations behind
// transport-friendly DTOs. The CLI and the daemon's socket server both
// speak in these types; nothing here knows about HTTP or the terminal.
package api
