package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"segmenteditor/internal/config"
	"segmenteditor/internal/logger"
	"segmenteditor/internal/registry"
	"segmenteditor/internal/server"
	"segmenteditor/internal/session"
	"segmenteditor/internal/streamer"
)

// shutdownTimeout bounds how long in-flight requests may run after a
// shutdown signal before the listener is torn down
const shutdownTimeout = 5 * time.Second

// Application is the segment editor orchestrator: it wires configuration,
// logging, the project registry, the range streamer and the HTTP server,
// and owns the session lock-file entry for the port it serves on.
type Application struct {
	config   *config.Configuration
	logger   *zap.Logger
	registry *registry.ProjectRegistry
	sessions *session.Manager
	srv      *server.Server

	port       int
	registered bool
}

// NewApplication creates an application instance with all components
// initialized. Configuration comes from the file named by CONFIG_PATH when
// set, otherwise from environment variables.
func NewApplication() (*Application, error) {
	var cfg *config.Configuration
	var err error

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		cfg, err = config.NewConfigurationFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.NewConfigurationFromEnv()
		if err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	return NewApplicationWithConfig(cfg, logger.NewLogger()), nil
}

// NewApplicationWithConfig creates an application over an existing
// configuration and logger
func NewApplicationWithConfig(cfg *config.Configuration, zapLogger *zap.Logger) *Application {
	reg := registry.NewProjectRegistryWithLogger(cfg.GetProjectsDir(), zapLogger)
	str := streamer.NewRangeStreamerWithLogger(zapLogger)
	return &Application{
		config:   cfg,
		logger:   zapLogger,
		registry: reg,
		sessions: session.NewManagerWithLogger(cfg.GetSessionLockFile(), zapLogger),
		srv:      server.New(reg, str, cfg.GetFrontendDir(), zapLogger),
	}
}

// Sessions exposes the session manager, used by the -sessions listing
func (app *Application) Sessions() *session.Manager {
	return app.sessions
}

// Run resolves the listen port, registers the session and serves HTTP until
// the context is cancelled or the listener fails
func (app *Application) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		app.logger.Info("context cancelled before startup, shutting down immediately")
		return nil
	default:
	}

	port, err := app.resolvePort()
	if err != nil {
		return err
	}
	app.port = port

	if err := app.sessions.Register(port, app.config.GetProjectsDir()); err != nil {
		// The lock file is advisory; a failed write is worth a warning,
		// not a refusal to serve.
		app.logger.Warn("failed to register session", zap.Error(err))
	} else {
		app.registered = true
	}

	addr := net.JoinHostPort(app.config.GetServerHost(), strconv.Itoa(port))
	httpServer := &http.Server{
		Addr:    addr,
		Handler: app.srv.Router(),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	app.logger.Info("segment editor listening",
		zap.String("addr", addr),
		zap.String("projects_dir", app.config.GetProjectsDir()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	}
}

// Shutdown releases the session entry after the server has stopped
func (app *Application) Shutdown() error {
	if app.registered {
		if err := app.sessions.Release(app.port); err != nil {
			return fmt.Errorf("failed to release session: %w", err)
		}
		app.registered = false
	}
	app.logger.Info("segment editor stopped")
	return nil
}

// resolvePort returns the configured fixed port, or allocates one from the
// pool when the configuration asks for auto assignment
func (app *Application) resolvePort() (int, error) {
	if fixed := app.config.GetServerPort(); fixed != 0 {
		return fixed, nil
	}
	sessions := app.sessions.CleanupStale(app.sessions.Load())
	port, err := app.sessions.FindAvailablePort(app.config.GetPortPool(), sessions)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate a port: %w", err)
	}
	return port, nil
}
