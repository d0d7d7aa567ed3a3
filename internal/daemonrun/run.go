// Package daemonrun assembles and runs the daemon process: logger, store,
// providers, executor, watcher, IPC server, and signal handling.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/daemon"
	"loom/internal/executor"
	"loom/internal/ipc"
	"loom/internal/logging"
	"loom/internal/notifications"
	"loom/internal/output"
	"loom/internal/pipeline"
	"loom/internal/providers"
	"loom/internal/watch"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	SocketPath  string
}

// Run starts the loom daemon runtime loop and blocks until a signal.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("loom-%s.log", runID))

	logger, err := logging.New(logging.Options{
		Level:            opts.LogLevel,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logProviderSnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update loom.log link: %v\n", err)
	}
	pidPath := filepath.Join(cfg.Paths.LogDir, "loom.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := output.Open(cfg)
	if err != nil {
		logger.Error("open output store", logging.Error(err))
		return err
	}
	defer store.Close()

	artifacts, err := providers.NewArtifactStore(cfg.Paths.ArtifactDir)
	if err != nil {
		return fmt.Errorf("init artifact store: %w", err)
	}
	registry, err := providers.NewRegistry(cfg, artifacts)
	if err != nil {
		return fmt.Errorf("init provider registry: %w", err)
	}

	notifier := notifications.NewService(cfg)
	exec := executor.New(store, registry, notifier, logger)
	watcher := watch.NewWatcher(cfg, store, notifier, logger)
	controller := pipeline.New(store, notifier, logger)
	outputs := api.NewOutputService(cfg, store, exec, controller, logger)

	d, err := daemon.New(cfg, store, exec, watcher, outputs, notifier, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := strings.TrimSpace(opts.SocketPath)
	if socketPath == "" {
		socketPath = cfg.Paths.SocketPath
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"))
	}

	<-signalCtx.Done()
	logger.Info("loom daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "loom.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logProviderSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("provider snapshot",
		logging.String(logging.FieldEventType, "provider_snapshot"),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("llm_model", strings.TrimSpace(cfg.LLM.Model)),
		logging.Bool("speech_configured", strings.TrimSpace(cfg.Speech.BaseURL) != ""),
		logging.Bool("image_configured", strings.TrimSpace(cfg.Image.BaseURL) != ""),
		logging.Bool("motion_configured", strings.TrimSpace(cfg.Motion.BaseURL) != ""),
		logging.Bool("music_configured", strings.TrimSpace(cfg.Music.BaseURL) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}
