package app

import (
	"database/sql"
	"time"

	"github.com/ChristianSBP/sbp-services/internal/config"
	"github.com/ChristianSBP/sbp-services/internal/db"
	"github.com/ChristianSBP/sbp-services/internal/events"
	"github.com/ChristianSBP/sbp-services/internal/generate"
	"github.com/ChristianSBP/sbp-services/internal/migrate"
	"github.com/ChristianSBP/sbp-services/internal/render"
	"github.com/ChristianSBP/sbp-services/internal/repo"
	"github.com/ChristianSBP/sbp-services/internal/rules"
)

// App wires the storage, the rule engine and the generation pipeline once,
// for both the HTTP server and the CLI.
type App struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Rules    rules.Engine
	Pipeline *generate.Pipeline
	Now      func() time.Time
}

// Open opens (and migrates) the workspace database and wires the application
// with the shipped renderer and converter.
func Open(workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return New(conn, cfg), nil
}

// New wires an App over an existing database connection.
func New(conn *sql.DB, cfg *config.Config) *App {
	r := repo.Repo{DB: conn}
	w := events.Writer{DB: conn}
	engine := rules.New(cfg)
	a := &App{
		DB:     conn,
		Repo:   r,
		Events: w,
		Config: cfg,
		Rules:  engine,
		Now:    time.Now,
	}
	a.Pipeline = &generate.Pipeline{
		DB:        conn,
		Repo:      r,
		Events:    w,
		Config:    cfg,
		Rules:     engine,
		Renderer:  render.TextRenderer{},
		Converter: render.DefaultConverter(),
	}
	return a
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.DB.Close()
}
