// Package notifications delivers pipeline events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured
// in config.toml and gracefully degrades to a no-op when no topic is set.
// Event categories (review, render, errors) can be toggled individually so
// operators only get pushed what they care about.
//
// Extend this package if you need alternative transports; pipeline code
// depends only on the Service interface.
package notifications
