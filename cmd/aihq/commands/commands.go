package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"k8s.io/client-go/util/homedir"

	"github.com/slok/aihq/internal/conventions"
	"github.com/slok/aihq/internal/log"
	"github.com/slok/aihq/internal/model"
	"github.com/slok/aihq/internal/queue"
	natsqueue "github.com/slok/aihq/internal/queue/nats"
	sqlitequeue "github.com/slok/aihq/internal/queue/sqlite"
	"github.com/slok/aihq/internal/storage"
	"github.com/slok/aihq/internal/storage/sqlite"
)

const (
	// LoggerTypeDefault is the logger default type.
	LoggerTypeDefault = "default"
	// LoggerTypeJSON is the logger json type.
	LoggerTypeJSON = "json"

	// QueueBackendSQLite stores the jobs in the task store database.
	QueueBackendSQLite = "sqlite"
	// QueueBackendNATS uses a NATS JetStream work queue.
	QueueBackendNATS = "nats"
)

// Command represents an application command, all commands that want to be executed
// should implement and setup on main.
type Command interface {
	Name() string
	Run(ctx context.Context) error
}

// RootCommand represents the root command configuration and global configuration
// for all the commands.
type RootCommand struct {
	// Global flags.
	Debug        bool
	NoLog        bool
	NoColor      bool
	LoggerType   string
	DataDir      string
	DBPath       string
	QueueBackend string
	NATSURL      string

	// Global instances.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Logger log.Logger
}

// NewRootCommand initializes the main root configuration.
func NewRootCommand(app *kingpin.Application) *RootCommand {
	c := &RootCommand{}

	app.Flag("debug", "Enable debug mode.").BoolVar(&c.Debug)
	app.Flag("no-log", "Disable logger.").BoolVar(&c.NoLog)
	app.Flag("no-color", "Disable logger color.").BoolVar(&c.NoColor)
	app.Flag("logger", "Selects the logger type.").Default(LoggerTypeDefault).EnumVar(&c.LoggerType, LoggerTypeDefault, LoggerTypeJSON)

	defaultDataDir := filepath.Join(homedir.HomeDir(), conventions.DefaultDataDir)
	app.Flag("data-dir", "Directory of the app data (database and repository workspaces).").Default(defaultDataDir).StringVar(&c.DataDir)
	app.Flag("db-path", "Path to the SQLite database file (defaults to <data-dir>/aihq.db).").StringVar(&c.DBPath)
	app.Flag("queue-backend", "Job queue backend.").Default(QueueBackendSQLite).EnumVar(&c.QueueBackend, QueueBackendSQLite, QueueBackendNATS)
	app.Flag("nats-url", "NATS server URL, used by the nats queue backend.").Envar("NATS_URL").Default(nats.DefaultURL).StringVar(&c.NATSURL)

	return c
}

func (c RootCommand) dbPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return conventions.DBPath(c.DataDir)
}

// newRepository opens the SQLite task store.
func (c RootCommand) newRepository(ctx context.Context) (*sqlite.Repository, error) {
	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{
		DBPath: c.dbPath(),
		Logger: c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create repository: %w", err)
	}

	return repo, nil
}

// queueOptions are the worker side queue settings.
type queueOptions struct {
	// Redelivery is the time a delivered job is owned by the worker.
	Redelivery time.Duration
}

// newQueue returns the configured job queue, the returned func releases its resources.
func (c RootCommand) newQueue(ctx context.Context, repo *sqlite.Repository, opts queueOptions) (queue.Queue, func(), error) {
	switch c.QueueBackend {
	case QueueBackendNATS:
		nc, err := nats.Connect(c.NATSURL, nats.Name("aihq"))
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to NATS: %w", err)
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("could not create JetStream context: %w", err)
		}

		q, err := natsqueue.NewQueue(ctx, natsqueue.QueueConfig{
			JetStream: js,
			AckWait:   opts.Redelivery,
			Logger:    c.Logger,
		})
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("could not create NATS queue: %w", err)
		}

		return q, func() { _ = nc.Drain() }, nil

	default:
		q, err := sqlitequeue.NewQueue(sqlitequeue.QueueConfig{
			DB:            repo.DB(),
			LeaseDuration: opts.Redelivery,
			Logger:        c.Logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("could not create SQLite queue: %w", err)
		}

		return q, func() {}, nil
	}
}

// resolveProject gets a project by ID or name.
func resolveProject(ctx context.Context, repo storage.ProjectRepository, idOrName string) (*model.Project, error) {
	p, err := repo.GetProject(ctx, idOrName)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	p, err = repo.GetProjectByName(ctx, idOrName)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("project %q: %w", idOrName, model.ErrNotFound)
		}
		return nil, err
	}

	return p, nil
}
