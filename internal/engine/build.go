package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"devterminal/internal/config"
	"devterminal/internal/domain"
	"devterminal/internal/events"
	"devterminal/internal/generator"
	"devterminal/internal/repo"
)

type BuildResult struct {
	Request   domain.DevRequest
	Artifacts []domain.GeneratedArtifact
}

// Build executes the step plan of a request strictly in order. The first
// failing step aborts the rest of the plan; steps after it stay pending.
// A pending request is analyzed and planned first. On abort the returned
// result still carries the artifacts committed before the failure, and the
// error is a *GenerationError.
//
// Once the request moves to building the run ignores cancellation of ctx:
// every started step must reach a terminal state.
func (e Engine) Build(ctx context.Context, requestID, actorID string) (BuildResult, error) {
	if requestID == "" {
		return BuildResult{}, invalidf("requestId is required")
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return BuildResult{}, err
	}
	steps, err := e.prepareBuild(ctx, &req, actorID)
	if err != nil {
		return BuildResult{Request: req}, err
	}
	ctx = context.WithoutCancel(ctx)
	if err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateRequestStatus(ctx, tx, req.ID, domain.RequestBuilding, repo.RequestUpdate{}, domain.RequestAnalyzing); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.RequestBuilding, req.ID, "request", req.ID, actorID, events.EventPayload{"steps": len(steps)})
	}); err != nil {
		return BuildResult{Request: req}, err
	}
	req.Status = domain.RequestBuilding
	e.Log.Info().Str("request_id", req.ID).Int("steps", len(steps)).Msg("build started")

	artifacts := []domain.GeneratedArtifact{}
	for _, step := range steps {
		stepStart := e.now()
		art, err := e.runStep(ctx, req, step, artifacts, actorID)
		if err != nil {
			genErr := &GenerationError{RequestID: req.ID, StepID: step.ID, StepType: step.StepType, StepOrder: step.StepOrder, Err: err}
			updated, abortErr := e.abort(ctx, req, step, stepStart, genErr, actorID)
			if abortErr != nil {
				return BuildResult{Request: req, Artifacts: artifacts}, errors.Join(genErr, abortErr)
			}
			return BuildResult{Request: updated, Artifacts: artifacts}, genErr
		}
		if art != nil {
			artifacts = append(artifacts, *art)
		}
	}

	end := e.now()
	completedAt := end.UTC().Format(domain.TimeLayout)
	upd := repo.RequestUpdate{CompletedAt: &completedAt, BuildDurationMS: durationMS(req.StartedAt, end)}
	if err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.UpdateRequestStatus(ctx, tx, req.ID, domain.RequestCompleted, upd, domain.RequestBuilding); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.RequestCompleted, req.ID, "request", req.ID, actorID, events.EventPayload{"artifacts": len(artifacts)})
	}); err != nil {
		return BuildResult{Request: req, Artifacts: artifacts}, err
	}
	req, err = e.Repo.GetRequest(ctx, req.ID)
	if err != nil {
		return BuildResult{Artifacts: artifacts}, err
	}
	e.Log.Info().Str("request_id", req.ID).Int("artifacts", len(artifacts)).Msg("build completed")
	return BuildResult{Request: req, Artifacts: artifacts}, nil
}

// prepareBuild returns the pending plan, analyzing a pending request first.
func (e Engine) prepareBuild(ctx context.Context, req *domain.DevRequest, actorID string) ([]domain.BuildStep, error) {
	switch req.Status {
	case domain.RequestPending:
		now := e.ts()
		if err := e.Repo.UpdateRequestStatus(ctx, nil, req.ID, domain.RequestAnalyzing, repo.RequestUpdate{StartedAt: &now}, domain.RequestPending); err != nil {
			return nil, err
		}
		req.Status = domain.RequestAnalyzing
		req.StartedAt = &now
		_, steps, err := e.plan(ctx, *req, actorID)
		return steps, err
	case domain.RequestAnalyzing:
		steps, err := e.Repo.ListSteps(ctx, req.ID)
		if err != nil {
			return nil, err
		}
		if len(steps) == 0 {
			_, steps, err = e.plan(ctx, *req, actorID)
			return steps, err
		}
		for _, s := range steps {
			if s.Status != domain.StepPending {
				return nil, invalidf("step %d of request %s is already %s", s.StepOrder, req.ID, s.Status)
			}
		}
		return steps, nil
	}
	return nil, invalidf("request %s is %s; only pending or analyzing requests can be built", req.ID, req.Status)
}

// runStep moves one step through running to completed. The artifact insert,
// the step completion and their events commit together, so a failed commit
// leaves the step running for abort to resolve.
func (e Engine) runStep(ctx context.Context, req domain.DevRequest, step domain.BuildStep, prior []domain.GeneratedArtifact, actorID string) (*domain.GeneratedArtifact, error) {
	start := e.now()
	startedAt := start.UTC().Format(domain.TimeLayout)
	if err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.MarkStepRunning(ctx, tx, step.ID, startedAt); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.StepRunning, req.ID, "step", step.ID, actorID, events.EventPayload{"step_type": step.StepType, "step_order": step.StepOrder})
	}); err != nil {
		return nil, fmt.Errorf("mark running: %w", err)
	}
	step.Status = domain.StepRunning
	step.StartedAt = &startedAt

	if err := requirementsMet(step, prior); err != nil {
		return nil, err
	}
	gen, err := e.Generators.Lookup(step.StepType)
	if err != nil {
		return nil, err
	}
	art, err := gen.Generate(ctx, generator.Input{Request: req, Step: step, Prior: prior})
	if err != nil {
		return nil, err
	}
	switch {
	case art == nil && step.Produces != "":
		return nil, fmt.Errorf("step produced no %s artifact", step.Produces)
	case art != nil && art.ArtifactType != step.Produces:
		return nil, fmt.Errorf("step declared %q but produced %s", step.Produces, art.ArtifactType)
	}

	end := e.now()
	completedAt := end.UTC().Format(domain.TimeLayout)
	artifactID := ""
	if art != nil {
		art.ID = newID()
		art.RequestID = req.ID
		art.CreatedAt = completedAt
		if art.LinkedModules == nil {
			art.LinkedModules = []string{}
		}
		artifactID = art.ID
	}
	if err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if art != nil {
			if err := e.checkCollision(ctx, tx, *art, actorID); err != nil {
				return err
			}
			if err := e.Repo.InsertArtifact(ctx, tx, *art); err != nil {
				return err
			}
			if err := e.emit(ctx, tx, events.ArtifactCreated, req.ID, "artifact", art.ID, actorID, events.EventPayload{
				"artifact_type": art.ArtifactType, "artifact_name": art.ArtifactName, "step_id": step.ID,
			}); err != nil {
				return err
			}
		}
		if err := e.Repo.CompleteStep(ctx, tx, step.ID, completedAt, artifactID); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.StepCompleted, req.ID, "step", step.ID, actorID, events.EventPayload{
			"step_type": step.StepType, "output_artifact_id": artifactID,
		})
	}); err != nil {
		return nil, fmt.Errorf("commit step: %w", err)
	}
	e.Metrics.RecordStep(step.StepType, domain.StepCompleted, end.Sub(start))
	if art != nil {
		e.Metrics.RecordArtifact(art.ArtifactType)
	}
	e.Log.Debug().Str("request_id", req.ID).Str("step_type", step.StepType).Int("step_order", step.StepOrder).
		Dur("duration", end.Sub(start)).Msg("step completed")
	return art, nil
}

func requirementsMet(step domain.BuildStep, prior []domain.GeneratedArtifact) error {
	for _, need := range step.Requires {
		found := false
		for _, a := range prior {
			if a.ArtifactType == need {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("requires a %s artifact from an earlier step", need)
		}
	}
	return nil
}

// checkCollision records when another request already owns an active
// artifact of the same type and name. Names are not namespaced per request.
func (e Engine) checkCollision(ctx context.Context, tx *sql.Tx, art domain.GeneratedArtifact, actorID string) error {
	others, err := e.Repo.ListArtifacts(ctx, tx, repo.ArtifactFilters{
		Type: art.ArtifactType, Name: art.ArtifactName, ActiveOnly: true, ExcludeRequestID: art.RequestID, Limit: 1,
	})
	if err != nil || len(others) == 0 {
		return err
	}
	e.Log.Warn().Str("request_id", art.RequestID).Str("artifact_type", art.ArtifactType).Str("artifact_name", art.ArtifactName).
		Str("existing_request_id", others[0].RequestID).Msg("artifact name collision")
	return e.emit(ctx, tx, events.ArtifactCollision, art.RequestID, "artifact", art.ID, actorID, events.EventPayload{
		"artifact_type": art.ArtifactType, "artifact_name": art.ArtifactName,
		"existing_artifact_id": others[0].ID, "existing_request_id": others[0].RequestID,
	})
}

// abort records the failed step and applies the configured failure policy to
// the request.
func (e Engine) abort(ctx context.Context, req domain.DevRequest, step domain.BuildStep, started time.Time, genErr *GenerationError, actorID string) (domain.DevRequest, error) {
	end := e.now()
	now := end.UTC().Format(domain.TimeLayout)
	msg := genErr.Err.Error()
	markFailed := e.Config.Pipeline.OnFailure != config.OnFailureLeaveBuilding
	err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.FailStep(ctx, tx, step.ID, now, msg); err != nil {
			return err
		}
		if err := e.emit(ctx, tx, events.StepFailed, req.ID, "step", step.ID, actorID, events.EventPayload{
			"step_type": step.StepType, "error": msg,
		}); err != nil {
			return err
		}
		if !markFailed {
			return nil
		}
		errMsg := genErr.Error()
		upd := repo.RequestUpdate{CompletedAt: &now, BuildDurationMS: durationMS(req.StartedAt, end), ErrorMessage: &errMsg}
		if err := e.Repo.UpdateRequestStatus(ctx, tx, req.ID, domain.RequestFailed, upd, domain.RequestBuilding); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.RequestFailed, req.ID, "request", req.ID, actorID, events.EventPayload{
			"step_id": step.ID, "step_type": step.StepType, "error": msg,
		})
	})
	if err != nil {
		return req, err
	}
	e.Metrics.RecordStep(step.StepType, domain.StepFailed, end.Sub(started))
	e.Log.Error().Err(genErr.Err).Str("request_id", req.ID).Str("step_type", step.StepType).Int("step_order", step.StepOrder).
		Bool("request_failed", markFailed).Msg("build aborted")
	return e.Repo.GetRequest(ctx, req.ID)
}
