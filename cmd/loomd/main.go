// loomd runs the pipeline daemon in the foreground. The loom CLI
// normally launches it via the hidden `loom daemon` subcommand; this
// binary exists for service managers that want a dedicated unit.
package main

import (
	"context"
	"flag"
	"log"

	"loom/internal/config"
	"loom/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	logLevel := flag.String("log-level", "", "Override configured log level")
	socketPath := flag.String("socket", "", "Override the daemon socket path")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	level := cfg.Logging.Level
	if *logLevel != "" {
		level = *logLevel
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: level, SocketPath: *socketPath}); err != nil {
		log.Fatalf("loomd: %v", err)
	}
}
