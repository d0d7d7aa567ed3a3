// Package daemon ties the long-running pieces together: the store, the
// stage executor, the stale-run watcher, and the single-instance lock.
package daemon
