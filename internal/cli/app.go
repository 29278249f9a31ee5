// Package cli wires configuration, persistence and the API client into the
// unlabel commands.
package cli

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"charm.land/lipgloss/v2"

	"github.com/vbonduro/unlabel/internal/auth"
	"github.com/vbonduro/unlabel/internal/backend"
	"github.com/vbonduro/unlabel/internal/camera/v4l"
	"github.com/vbonduro/unlabel/internal/capture"
	"github.com/vbonduro/unlabel/internal/capture/local"
	"github.com/vbonduro/unlabel/internal/config"
	"github.com/vbonduro/unlabel/internal/conversation"
	"github.com/vbonduro/unlabel/internal/db"
	"github.com/vbonduro/unlabel/internal/logging"
	"github.com/vbonduro/unlabel/internal/store"
)

// App holds the dependencies shared by every command. They are built once
// the command line has been parsed.
type App struct {
	In  io.Reader
	Out io.Writer

	outMu sync.Mutex

	cfg     *config.Config
	logger  *slog.Logger
	cleanup func()
	db      *sql.DB
	auth    *auth.Manager
	client  *backend.Client

	// newCamera is replaced in tests.
	newCamera func() capture.Camera
}

func NewApp(in io.Reader, out io.Writer) *App {
	return &App{In: in, Out: out}
}

func (a *App) setup() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		cleanup()
		return fmt.Errorf("failed to open database: %w", err)
	}

	creds := store.NewCredentialStore(database)
	client := backend.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, backend.TokenFunc(creds.Get), logger)
	manager := auth.NewManager(creds, client, logger)

	a.cfg = cfg
	a.logger = logger
	a.cleanup = cleanup
	a.db = database
	a.auth = manager
	a.client = client
	if a.newCamera == nil {
		a.newCamera = func() capture.Camera {
			return v4l.New(cfg.CameraDevice, cfg.FFmpegPath, logger)
		}
	}
	logger.Debug("app ready", "api_url", cfg.APIBaseURL, "db_path", cfg.DBPath)
	return nil
}

// Close releases the database and the log file.
func (a *App) Close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("failed to close database", "error", err)
		}
		a.db = nil
	}
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

func (a *App) newConversation(opts ...conversation.Option) *conversation.Controller {
	return conversation.New(a.client, a.logger, opts...)
}

func (a *App) newSession() *capture.Session {
	return capture.NewSession(a.newCamera(), a.logger)
}

func (a *App) fileStore() (*local.Store, error) {
	return local.NewStore(a.cfg.CaptureDir)
}

func (a *App) println(s string) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	if _, err := lipgloss.Fprintln(a.Out, s); err != nil {
		a.logger.Debug("write output failed", "error", err)
	}
}
