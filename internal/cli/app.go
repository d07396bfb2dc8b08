package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dukerupert/shepherd/internal/config"
	"github.com/dukerupert/shepherd/internal/database"
	"github.com/dukerupert/shepherd/internal/followup"
	"github.com/dukerupert/shepherd/internal/logging"
	"github.com/dukerupert/shepherd/internal/notion"
	"github.com/dukerupert/shepherd/internal/pco"
	"github.com/dukerupert/shepherd/internal/store"
	"github.com/dukerupert/shepherd/internal/theme"
)

// stateDocument names the documents row holding follow-up state in SQLite.
const stateDocument = "followup_state"

// app holds the wired dependencies for one command invocation.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	backend   store.Backend
	store     *store.FollowupStore
	catalog   *theme.Catalog
	directory *pco.Client
	notion    *notion.Client
	engine    *followup.Engine
	location  *time.Location
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, location: cfg.Location()}

	var backend store.Backend
	switch cfg.State.Backend {
	case config.BackendSQLite:
		db, err := a.database()
		if err != nil {
			return nil, err
		}
		backend = store.NewSQLiteBackend(db, stateDocument)
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.State.File), 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		backend = store.NewFileBackend(cfg.State.File)
	}

	a.backend = backend
	a.store = store.NewFollowupStore(backend)
	if err := a.store.Load(); err != nil {
		if !errors.Is(err, store.ErrStoreCorrupted) {
			a.close()
			return nil, err
		}
		logger.Warn("follow-up state unreadable, starting empty; the old document is set aside on the next write", "backend", cfg.State.Backend, "error", err)
	}

	a.catalog, err = theme.Load(cfg.ThemesFile)
	if err != nil {
		a.close()
		return nil, err
	}

	directory := pco.NewClient(pco.Config{
		AppID:   cfg.PCO.AppID,
		Secret:  cfg.PCO.Secret,
		ListID:  cfg.PCO.ListID,
		BaseURL: cfg.PCO.BaseURL,
	})
	if !directory.Configured() {
		logger.Debug("planning center not configured; generation will fail")
	}
	a.directory = directory

	opts := []followup.Option{
		followup.WithLogger(logger.With("component", "followup")),
		followup.WithClock(func() time.Time { return time.Now().In(a.location) }),
	}
	var history followup.ContactHistory
	nc := notion.NewClient(notion.Config{
		Token:          cfg.Notion.Token,
		PeopleDatabase: cfg.Notion.PeopleDatabase,
		BaseURL:        cfg.Notion.BaseURL,
	}, notion.WithLogger(logger.With("component", "notion")))
	if nc.Configured() {
		a.notion = nc
		history = nc
		opts = append(opts, followup.WithContactLogger(nc))
	}

	a.engine = followup.NewEngine(a.store, directory, a.catalog, history, opts...)
	return a, nil
}

// database opens the SQLite database on first use.
func (a *app) database() (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.State.Database), 0o755); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	db, err := database.Open(a.cfg.State.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	return db, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}
