package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"devterminal/internal/config"
	"devterminal/internal/db"
	"devterminal/internal/engine"
	"devterminal/internal/metrics"
	"devterminal/internal/migrate"
)

// Options select the workspace, config file and logging of a runtime.
type Options struct {
	Workspace  string
	ConfigPath string
	LogLevel   string
	PrettyLog  bool
	// LogOutput defaults to stderr.
	LogOutput io.Writer
	// WithMetrics attaches a Prometheus registry to the engine.
	WithMetrics bool
}

// Runtime bundles an engine with the resources it owns.
type Runtime struct {
	Engine engine.Engine
	Log    zerolog.Logger
	close  func() error
}

// Close releases the database connection.
func (r *Runtime) Close() error {
	if r == nil || r.close == nil {
		return nil
	}
	return r.close()
}

// Open prepares the workspace, migrates the database, loads the config and
// seeds the role catalog from it.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	log, err := NewLogger(opts.LogLevel, opts.PrettyLog, opts.LogOutput)
	if err != nil {
		return nil, err
	}
	cfg, err := ResolveConfig(opts.Workspace, opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	e := engine.New(conn, cfg)
	e.Log = log
	if opts.WithMetrics {
		e.Metrics = metrics.New()
	}
	if err := e.SeedRoles(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	version, err := migrate.Version(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	log.Debug().Str("workspace", opts.Workspace).Str("db", db.Path(opts.Workspace)).Int("schema_version", version).Msg("runtime ready")
	return &Runtime{Engine: e, Log: log, close: conn.Close}, nil
}

// ResolveConfig loads the config override when given, otherwise the
// workspace's devterm.yml, falling back to the built-in defaults.
func ResolveConfig(workspace, override string) (*config.Config, error) {
	path := override
	if path == "" {
		path = config.Path(workspace)
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// NewLogger builds the process logger. Pretty output uses the zerolog
// console writer.
func NewLogger(level string, pretty bool, out io.Writer) (zerolog.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	lvl := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q", level)
		}
		lvl = parsed
	}
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "devterm").Logger(), nil
}
