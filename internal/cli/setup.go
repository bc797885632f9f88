package cli

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/surveydb/internal/command"
	"github.com/roach88/surveydb/internal/config"
	"github.com/roach88/surveydb/internal/database"
	"github.com/roach88/surveydb/internal/logging"
	"github.com/roach88/surveydb/internal/schema"
	"github.com/roach88/surveydb/internal/store"
)

// environment is what every database-backed command runs against.
type environment struct {
	config     *config.Config
	log        *zap.Logger
	dispatcher *command.Dispatcher
	stores     []*store.Store
}

// Close closes every database and flushes the logger.
func (e *environment) Close() error {
	var errs []error
	for _, st := range e.stores {
		errs = append(errs, st.Close())
	}
	_ = e.log.Sync()
	return errors.Join(errs...)
}

// connectError marks a database that could not be opened or reconciled.
type connectError struct {
	Database string
	Err      error
}

func (e *connectError) Error() string {
	return fmt.Sprintf("database %s: %v", e.Database, e.Err)
}

func (e *connectError) Unwrap() error {
	return e.Err
}

// loadConfig reads the configuration named by the global flags.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Fs, opts.Config, opts.DotEnv)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// newLogger builds the logger from the configuration. --log-level wins
// over the configured level, and --verbose over both.
func newLogger(opts *RootOptions, cfg *config.Config) (*zap.Logger, error) {
	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if opts.Verbose {
		level = "debug"
	}
	log, err := logging.New(cfg.Log.Env, level)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create logger", err)
	}
	return log, nil
}

// openEnvironment loads the configuration, then opens and reconciles every
// configured database.
func openEnvironment(ctx context.Context, opts *RootOptions) (*environment, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(opts, cfg)
	if err != nil {
		return nil, err
	}

	var shared []schema.JoinTemplate
	if cfg.Joins != "" {
		shared, err = schema.LoadJoins(opts.Fs, cfg.Joins)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load joins", err)
		}
	}

	env := &environment{config: cfg, log: log}
	connections := make(map[string]*database.Connection, len(cfg.Databases))
	for _, name := range cfg.DatabaseNames() {
		conn, st, err := openDatabase(ctx, opts, name, cfg.Databases[name], shared, log)
		if st != nil {
			env.stores = append(env.stores, st)
		}
		if err != nil {
			_ = env.Close()
			return nil, err
		}
		connections[name] = conn
	}

	env.dispatcher = command.NewDispatcher(connections, log)
	return env, nil
}

func openDatabase(ctx context.Context, opts *RootOptions, name string, db config.DatabaseConfig, shared []schema.JoinTemplate, log *zap.Logger) (*database.Connection, *store.Store, error) {
	joins := append([]schema.JoinTemplate(nil), shared...)
	if db.Joins != "" {
		extra, err := schema.LoadJoins(opts.Fs, db.Joins)
		if err != nil {
			return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load joins for %s", name), err)
		}
		joins = append(joins, extra...)
	}

	declared, err := schema.Load(opts.Fs, db.Schema, joins, log)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to load schema for %s", name), err)
	}
	// Clients address the database by its configured name.
	declared.Name = name

	st, err := store.Open(ctx, store.Options{
		Driver:       db.Driver,
		DSN:          db.URL,
		Namespace:    db.Namespace,
		MaxOpenConns: db.MaxOpenConns,
	})
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", &connectError{Database: name, Err: err})
	}

	conn, err := database.NewConnection(ctx, st, declared, log)
	if err != nil {
		return nil, st, WrapExitError(ExitCommandError, "failed to reconcile schema", &connectError{Database: name, Err: err})
	}
	return conn, st, nil
}
