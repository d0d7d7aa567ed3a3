// Package ipc exposes daemon control and pipeline operations over
// JSON-RPC on a Unix domain socket. The CLI is the only intended
// client; payloads reuse the api package DTOs.
package ipc
