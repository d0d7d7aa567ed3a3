// Package providers contains the generation side of the pipeline: the
// chat-completion client backing the text stages, HTTP clients for the
// media services, the filesystem artifact store, and the per-stage
// producers the executor dispatches to. Provider failures are tagged
// with the services error taxonomy so gates record a useful feedback
// kind.
package providers
