package repo

import (
	"context"
	"database/sql"
	"fmt"

	"devterminal/internal/domain"
)

const stepColumns = `id,request_id,step_name,step_type,step_order,status,produces,requires_json,started_at,completed_at,output_artifact_id,error_message`

func scanStep(row rowScanner) (domain.BuildStep, error) {
	var (
		s                      domain.BuildStep
		produces, requires     sql.NullString
		startedAt, completedAt sql.NullString
		outputID, errMsg       sql.NullString
	)
	err := row.Scan(&s.ID, &s.RequestID, &s.StepName, &s.StepType, &s.StepOrder, &s.Status, &produces, &requires,
		&startedAt, &completedAt, &outputID, &errMsg)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Produces = produces.String
	s.Requires = unmarshalStrings(requires)
	if len(s.Requires) == 0 {
		s.Requires = nil
	}
	s.StartedAt = stringPtr(startedAt)
	s.CompletedAt = stringPtr(completedAt)
	s.OutputArtifactID = stringPtr(outputID)
	s.ErrorMessage = stringPtr(errMsg)
	return s, nil
}

// InsertSteps writes a plan. Callers pass a transaction so a plan is either
// stored whole or not at all.
func (r Repo) InsertSteps(ctx context.Context, q Querier, steps []domain.BuildStep) error {
	for _, s := range steps {
		requires, err := marshalStrings(s.Requires)
		if err != nil {
			return err
		}
		if _, err := r.q(q).ExecContext(ctx, `INSERT INTO build_logs(`+stepColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			s.ID, s.RequestID, s.StepName, s.StepType, s.StepOrder, s.Status, nullable(s.Produces), requires,
			nullableStringPtr(s.StartedAt), nullableStringPtr(s.CompletedAt), nullableStringPtr(s.OutputArtifactID),
			nullableStringPtr(s.ErrorMessage)); err != nil {
			return fmt.Errorf("insert step %d: %w", s.StepOrder, err)
		}
	}
	return nil
}

func (r Repo) GetStep(ctx context.Context, q Querier, id string) (domain.BuildStep, error) {
	return scanStep(r.q(q).QueryRowContext(ctx, `SELECT `+stepColumns+` FROM build_logs WHERE id=?`, id))
}

// ListSteps returns the plan of a request in step_order.
func (r Repo) ListSteps(ctx context.Context, requestID string) ([]domain.BuildStep, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stepColumns+` FROM build_logs WHERE request_id=? ORDER BY step_order`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.BuildStep{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// MarkStepRunning moves a pending step to running.
func (r Repo) MarkStepRunning(ctx context.Context, q Querier, id, now string) error {
	return r.transitionStep(ctx, q, id, domain.StepRunning,
		`UPDATE build_logs SET status=?, started_at=? WHERE id=? AND status=?`,
		domain.StepRunning, now, id, domain.StepPending)
}

// CompleteStep moves a running step to completed, recording the artifact it
// produced when there is one.
func (r Repo) CompleteStep(ctx context.Context, q Querier, id, now, artifactID string) error {
	return r.transitionStep(ctx, q, id, domain.StepCompleted,
		`UPDATE build_logs SET status=?, completed_at=?, output_artifact_id=? WHERE id=? AND status=?`,
		domain.StepCompleted, now, nullable(artifactID), id, domain.StepRunning)
}

// FailStep moves a pending or running step to failed.
func (r Repo) FailStep(ctx context.Context, q Querier, id, now, message string) error {
	res, err := r.q(q).ExecContext(ctx, `UPDATE build_logs SET status=?, completed_at=?, error_message=? WHERE id=? AND status IN (?,?)`,
		domain.StepFailed, now, nullable(message), id, domain.StepPending, domain.StepRunning)
	if err != nil {
		return err
	}
	return r.checkStepTransition(ctx, q, res, id, domain.StepFailed)
}

func (r Repo) transitionStep(ctx context.Context, q Querier, id, to, query string, args ...any) error {
	res, err := r.q(q).ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return r.checkStepTransition(ctx, q, res, id, to)
}

func (r Repo) checkStepTransition(ctx context.Context, q Querier, res sql.Result, id, to string) error {
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	s, err := r.GetStep(ctx, q, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("step %s: invalid transition %s -> %s", id, s.Status, to)
}
