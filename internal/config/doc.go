// Package config loads, normalizes, and validates the TOML configuration
// shared by the loom CLI and the loomd daemon.
//
// Resolution order: an explicit --config path, then
// ~/.config/loom/config.toml, then ./loom.toml. Missing files are not an
// error; defaults apply.
package config
