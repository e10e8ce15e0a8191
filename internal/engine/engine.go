package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"devterminal/internal/analyzer"
	"devterminal/internal/config"
	"devterminal/internal/domain"
	"devterminal/internal/events"
	"devterminal/internal/generator"
	"devterminal/internal/metrics"
	"devterminal/internal/repo"
)

// Analyzer inspects a prompt and predicts the artifacts a request needs.
type Analyzer interface {
	Analyze(ctx context.Context, text, requestType string) (domain.AnalysisResult, error)
}

// Engine orchestrates requests through intake, analysis, planning and
// execution, and serves the lifecycle operations around them.
type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Analyzer   Analyzer
	Generators generator.Registry
	Metrics    *metrics.Metrics
	Log        zerolog.Logger
	Now        func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	an := analyzer.New(cfg.Schema.DefaultEntity, cfg.Policies.DefaultRole)
	return Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Events:     events.Writer{},
		Config:     cfg,
		Analyzer:   an,
		Generators: generator.NewRegistry(generator.SettingsFromConfig(cfg), an),
		Log:        zerolog.Nop(),
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ts() string {
	return e.now().UTC().Format(domain.TimeLayout)
}

func newID() string {
	return uuid.NewString()
}

// SeedRoles makes sure every configured role exists in the role catalog.
func (e Engine) SeedRoles(ctx context.Context) error {
	return e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		for id, role := range e.Config.Roles {
			if err := e.Repo.EnsureRole(ctx, tx, id, role.Description); err != nil {
				return fmt.Errorf("seed role %s: %w", id, err)
			}
		}
		return nil
	})
}

func ensureRequestTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.RequestPending:
		if newStatus == domain.RequestAnalyzing {
			return nil
		}
	case domain.RequestAnalyzing:
		if newStatus == domain.RequestBuilding {
			return nil
		}
	case domain.RequestBuilding:
		if newStatus == domain.RequestCompleted || newStatus == domain.RequestFailed || newStatus == domain.RequestReverted {
			return nil
		}
	case domain.RequestCompleted, domain.RequestFailed, domain.RequestReverted:
		if newStatus == domain.RequestReverted {
			return nil
		}
	}
	return invalidf("request cannot move from %s to %s", oldStatus, newStatus)
}

func durationMS(startedAt *string, end time.Time) *int64 {
	if startedAt == nil {
		return nil
	}
	start, err := time.Parse(domain.TimeLayout, *startedAt)
	if err != nil {
		return nil
	}
	ms := end.Sub(start).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return &ms
}
