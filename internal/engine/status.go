package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"devterminal/internal/domain"
	"devterminal/internal/repo"
)

// Health classifications.
const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
)

// Status aggregates recent and active requests, recent artifacts, civic
// memory patterns and a health indicator. limit overrides the configured
// recent window when positive.
func (e Engine) Status(ctx context.Context, limit int) (domain.StatusReport, error) {
	if limit <= 0 {
		limit = e.Config.Status.RecentLimit
	}
	var report domain.StatusReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		report.RecentRequests, err = e.Repo.ListRequests(gctx, repo.RequestFilters{Limit: limit})
		return err
	})
	g.Go(func() error {
		var err error
		report.ActiveRequests, err = e.Repo.ListRequests(gctx, repo.RequestFilters{
			Statuses: []string{domain.RequestAnalyzing, domain.RequestBuilding},
		})
		return err
	})
	g.Go(func() error {
		var err error
		report.RecentArtifacts, err = e.Repo.ListArtifacts(gctx, nil, repo.ArtifactFilters{Limit: e.Config.Status.ArtifactLimit})
		return err
	})
	g.Go(func() error {
		var err error
		report.Patterns, err = e.Repo.ListPatterns(gctx, e.Config.Status.PatternLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.StatusReport{}, err
	}
	completed := 0
	for _, r := range report.RecentRequests {
		if r.Status == domain.RequestCompleted {
			completed++
		}
	}
	report.Health = ClassifyHealth(completed, len(report.RecentRequests))
	return report, nil
}

// ClassifyHealth computes completed/total as a percentage. Above 80 is
// healthy, above 60 is warning, anything else is critical. An empty window
// counts as fully healthy.
func ClassifyHealth(completed, total int) domain.HealthReport {
	h := domain.HealthReport{Completed: completed, Total: total, SuccessRate: 100}
	if total > 0 {
		h.SuccessRate = float64(completed) * 100 / float64(total)
	}
	switch {
	case h.SuccessRate > 80:
		h.Status = HealthHealthy
	case h.SuccessRate > 60:
		h.Status = HealthWarning
	default:
		h.Status = HealthCritical
	}
	return h
}
