package engine

import (
	"context"
	"database/sql"
	"strings"

	"devterminal/internal/domain"
	"devterminal/internal/events"
	"devterminal/internal/planner"
	"devterminal/internal/repo"
)

// IntakeOptions are the fields a caller submits with a new request. Empty
// values fall back to the pipeline defaults.
type IntakeOptions struct {
	Prompt             string
	RequestType        string
	TargetUsers        []string
	BuildMode          string
	UseCivicMemory     bool
	PreviewBeforeBuild bool
	ActorID            string
}

func (e Engine) emit(ctx context.Context, ex events.Execer, evtType, requestID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, ex, evtType, requestID, entityKind, entityID, actorID, payload)
}

// Intake validates and stores a new request in status analyzing.
func (e Engine) Intake(ctx context.Context, opts IntakeOptions) (domain.DevRequest, error) {
	prompt := strings.TrimSpace(opts.Prompt)
	if prompt == "" {
		return domain.DevRequest{}, invalidf("prompt is required")
	}
	if limit := e.Config.Pipeline.MaxPromptLength; limit > 0 && len(prompt) > limit {
		return domain.DevRequest{}, invalidf("prompt exceeds %d characters", limit)
	}
	req := domain.DevRequest{
		ID:                 newID(),
		Prompt:             prompt,
		RequestType:        opts.RequestType,
		TargetUsers:        opts.TargetUsers,
		BuildMode:          opts.BuildMode,
		UseCivicMemory:     opts.UseCivicMemory,
		PreviewBeforeBuild: opts.PreviewBeforeBuild,
		Status:             domain.RequestAnalyzing,
	}
	if req.RequestType == "" {
		req.RequestType = e.Config.Pipeline.DefaultRequestType
	}
	if req.BuildMode == "" {
		req.BuildMode = e.Config.Pipeline.DefaultBuildMode
	}
	if len(req.TargetUsers) == 0 {
		req.TargetUsers = append([]string{}, e.Config.Pipeline.DefaultTargetUsers...)
	}
	if err := e.checkRoles(ctx, req.TargetUsers); err != nil {
		return domain.DevRequest{}, err
	}
	now := e.ts()
	req.CreatedAt = now
	req.StartedAt = &now
	err := e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertRequest(ctx, tx, req); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.RequestCreated, req.ID, "request", req.ID, opts.ActorID, events.EventPayload{
			"request_type": req.RequestType, "target_users": req.TargetUsers, "build_mode": req.BuildMode,
		})
	})
	if err != nil {
		return domain.DevRequest{}, err
	}
	e.Log.Info().Str("request_id", req.ID).Str("request_type", req.RequestType).Msg("request created")
	return req, nil
}

func (e Engine) checkRoles(ctx context.Context, roles []string) error {
	for _, role := range roles {
		ok, err := e.Repo.RoleExists(ctx, role)
		if err != nil {
			return err
		}
		if !ok {
			return invalidf("unknown target user role %q", role)
		}
	}
	return nil
}

// AnalyzeOptions extends intake with the option to build right after
// planning.
type AnalyzeOptions struct {
	IntakeOptions
	AutoBuild bool
}

type AnalyzeResult struct {
	Request   domain.DevRequest
	Analysis  domain.AnalysisResult
	Steps     []domain.BuildStep
	Artifacts []domain.GeneratedArtifact
}

// Analyze stores a new request, analyzes its prompt and persists the step
// plan. With AutoBuild the plan is executed unless the request asks for a
// preview first. When the analyzer fails the request stays in analyzing and
// no steps are stored.
func (e Engine) Analyze(ctx context.Context, opts AnalyzeOptions) (AnalyzeResult, error) {
	req, err := e.Intake(ctx, opts.IntakeOptions)
	if err != nil {
		return AnalyzeResult{}, err
	}
	res, steps, err := e.plan(ctx, req, opts.ActorID)
	if err != nil {
		return AnalyzeResult{Request: req}, err
	}
	out := AnalyzeResult{Request: req, Analysis: res, Steps: steps}
	if !opts.AutoBuild || req.PreviewBeforeBuild {
		return out, nil
	}
	built, err := e.Build(ctx, req.ID, opts.ActorID)
	out.Request = built.Request
	out.Artifacts = built.Artifacts
	if steps, lerr := e.Repo.ListSteps(ctx, req.ID); lerr == nil {
		out.Steps = steps
	}
	return out, err
}

// plan runs the analyzer and stores the resulting steps for a request in
// analyzing.
func (e Engine) plan(ctx context.Context, req domain.DevRequest, actorID string) (domain.AnalysisResult, []domain.BuildStep, error) {
	res, err := e.Analyzer.Analyze(ctx, req.Prompt, req.RequestType)
	if err != nil {
		e.Log.Error().Err(err).Str("request_id", req.ID).Msg("analysis failed")
		return domain.AnalysisResult{}, nil, err
	}
	descriptors := planner.Plan(res)
	if err := planner.Validate(descriptors); err != nil {
		return domain.AnalysisResult{}, nil, err
	}
	steps := planner.Materialize(req.ID, descriptors, newID)
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertSteps(ctx, tx, steps); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.RequestAnalyzed, req.ID, "request", req.ID, actorID, events.EventPayload{
			"complexity": res.Complexity, "predicted_artifacts": res.PredictedArtifacts, "entity_name": res.EntityName, "steps": len(steps),
		})
	})
	if err != nil {
		return domain.AnalysisResult{}, nil, err
	}
	e.Log.Info().Str("request_id", req.ID).Int("complexity", res.Complexity).Strs("predicted", res.PredictedArtifacts).
		Int("steps", len(steps)).Msg("request analyzed")
	return res, steps, nil
}

type PreviewResult struct {
	Request   domain.DevRequest
	Steps     []domain.BuildStep
	Artifacts []domain.GeneratedArtifact
}

// Preview returns a request with its plan and artifacts. It never executes
// anything.
func (e Engine) Preview(ctx context.Context, requestID string) (PreviewResult, error) {
	if strings.TrimSpace(requestID) == "" {
		return PreviewResult{}, invalidf("requestId is required")
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return PreviewResult{}, err
	}
	steps, err := e.Repo.ListSteps(ctx, requestID)
	if err != nil {
		return PreviewResult{}, err
	}
	artifacts, err := e.Repo.ListArtifacts(ctx, nil, repo.ArtifactFilters{RequestID: requestID})
	if err != nil {
		return PreviewResult{}, err
	}
	return PreviewResult{Request: req, Steps: steps, Artifacts: artifacts}, nil
}

const defaultRevertReason = "Manual revert"

type RevertResult struct {
	Request  domain.DevRequest
	Reverted int64
}

// Revert stamps every active artifact of a request and moves the request to
// reverted. Reverting twice leaves the first stamps in place.
func (e Engine) Revert(ctx context.Context, requestID, reason, actorID string) (RevertResult, error) {
	if strings.TrimSpace(requestID) == "" {
		return RevertResult{}, invalidf("requestId is required")
	}
	if strings.TrimSpace(reason) == "" {
		reason = defaultRevertReason
	}
	req, err := e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return RevertResult{}, err
	}
	if err := ensureRequestTransition(req.Status, domain.RequestReverted); err != nil {
		return RevertResult{}, err
	}
	var n int64
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		now := e.ts()
		var err error
		if n, err = e.Repo.RevertArtifacts(ctx, tx, requestID, now, reason); err != nil {
			return err
		}
		if err := e.Repo.UpdateRequestStatus(ctx, tx, requestID, domain.RequestReverted, repo.RequestUpdate{}, req.Status); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.RequestReverted, requestID, "request", requestID, actorID, events.EventPayload{
			"reason": reason, "from": req.Status, "artifacts_reverted": n,
		})
	})
	if err != nil {
		return RevertResult{}, err
	}
	req, err = e.Repo.GetRequest(ctx, requestID)
	if err != nil {
		return RevertResult{}, err
	}
	e.Log.Info().Str("request_id", requestID).Int64("artifacts", n).Str("reason", reason).Msg("request reverted")
	return RevertResult{Request: req, Reverted: n}, nil
}

type CloneOptions struct {
	RequestID string
	Prompt    string
	ActorID   string
}

// Clone copies a request into a fresh pending request, optionally with a new
// prompt. Steps and artifacts are not copied.
func (e Engine) Clone(ctx context.Context, opts CloneOptions) (domain.DevRequest, error) {
	if strings.TrimSpace(opts.RequestID) == "" {
		return domain.DevRequest{}, invalidf("requestId is required")
	}
	src, err := e.Repo.GetRequest(ctx, opts.RequestID)
	if err != nil {
		return domain.DevRequest{}, err
	}
	prompt := src.Prompt
	if p := strings.TrimSpace(opts.Prompt); p != "" {
		prompt = p
	}
	if limit := e.Config.Pipeline.MaxPromptLength; limit > 0 && len(prompt) > limit {
		return domain.DevRequest{}, invalidf("prompt exceeds %d characters", limit)
	}
	source := src.ID
	clone := domain.DevRequest{
		ID:                 newID(),
		Prompt:             prompt,
		RequestType:        src.RequestType,
		TargetUsers:        append([]string{}, src.TargetUsers...),
		BuildMode:          src.BuildMode,
		UseCivicMemory:     src.UseCivicMemory,
		PreviewBeforeBuild: src.PreviewBeforeBuild,
		Status:             domain.RequestPending,
		SourceRequestID:    &source,
		CreatedAt:          e.ts(),
	}
	err = e.Repo.WithTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertRequest(ctx, tx, clone); err != nil {
			return err
		}
		return e.emit(ctx, tx, events.RequestCloned, clone.ID, "request", clone.ID, opts.ActorID, events.EventPayload{
			"source_request_id": src.ID, "prompt_changed": prompt != src.Prompt,
		})
	})
	if err != nil {
		return domain.DevRequest{}, err
	}
	e.Log.Info().Str("request_id", clone.ID).Str("source_request_id", src.ID).Msg("request cloned")
	return clone, nil
}
