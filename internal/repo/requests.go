package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"devterminal/internal/domain"
)

const requestColumns = `id,prompt,request_type,target_users_json,build_mode,use_civic_memory,preview_before_build,status,source_request_id,error_message,created_at,started_at,completed_at,build_duration_ms`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (domain.DevRequest, error) {
	var (
		r                       domain.DevRequest
		targets, source, errMsg sql.NullString
		startedAt, completedAt  sql.NullString
		useMemory, preview      int
		duration                sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.Prompt, &r.RequestType, &targets, &r.BuildMode, &useMemory, &preview, &r.Status,
		&source, &errMsg, &r.CreatedAt, &startedAt, &completedAt, &duration)
	if err == sql.ErrNoRows {
		return r, ErrNotFound
	}
	if err != nil {
		return r, err
	}
	r.TargetUsers = unmarshalStrings(targets)
	r.UseCivicMemory = useMemory != 0
	r.PreviewBeforeBuild = preview != 0
	r.SourceRequestID = stringPtr(source)
	r.ErrorMessage = stringPtr(errMsg)
	r.StartedAt = stringPtr(startedAt)
	r.CompletedAt = stringPtr(completedAt)
	if duration.Valid {
		d := duration.Int64
		r.BuildDurationMS = &d
	}
	return r, nil
}

func (r Repo) InsertRequest(ctx context.Context, q Querier, req domain.DevRequest) error {
	targets, err := marshalStrings(req.TargetUsers)
	if err != nil {
		return err
	}
	_, err = r.q(q).ExecContext(ctx, `INSERT INTO dev_requests(`+requestColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.Prompt, req.RequestType, targets, req.BuildMode, boolInt(req.UseCivicMemory), boolInt(req.PreviewBeforeBuild),
		req.Status, nullableStringPtr(req.SourceRequestID), nullableStringPtr(req.ErrorMessage), req.CreatedAt,
		nullableStringPtr(req.StartedAt), nullableStringPtr(req.CompletedAt), nullableInt64Ptr(req.BuildDurationMS))
	return err
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.DevRequest, error) {
	return r.GetRequestTx(ctx, nil, id)
}

func (r Repo) GetRequestTx(ctx context.Context, q Querier, id string) (domain.DevRequest, error) {
	return scanRequest(r.q(q).QueryRowContext(ctx, `SELECT `+requestColumns+` FROM dev_requests WHERE id=?`, id))
}

// RequestUpdate carries the optional columns written alongside a status change.
type RequestUpdate struct {
	StartedAt       *string
	CompletedAt     *string
	BuildDurationMS *int64
	ErrorMessage    *string
}

// UpdateRequestStatus moves a request to status. When from is non-empty the
// update only applies if the current status is one of from.
func (r Repo) UpdateRequestStatus(ctx context.Context, q Querier, id, status string, upd RequestUpdate, from ...string) error {
	fields := []string{"status=?"}
	args := []any{status}
	if upd.StartedAt != nil {
		fields = append(fields, "started_at=?")
		args = append(args, *upd.StartedAt)
	}
	if upd.CompletedAt != nil {
		fields = append(fields, "completed_at=?")
		args = append(args, *upd.CompletedAt)
	}
	if upd.BuildDurationMS != nil {
		fields = append(fields, "build_duration_ms=?")
		args = append(args, *upd.BuildDurationMS)
	}
	if upd.ErrorMessage != nil {
		fields = append(fields, "error_message=?")
		args = append(args, nullable(*upd.ErrorMessage))
	}
	where := "id=?"
	args = append(args, id)
	if len(from) > 0 {
		where += " AND status IN (" + placeholders(len(from)) + ")"
		for _, s := range from {
			args = append(args, s)
		}
	}
	res, err := r.q(q).ExecContext(ctx, fmt.Sprintf(`UPDATE dev_requests SET %s WHERE %s`, strings.Join(fields, ","), where), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := r.GetRequestTx(ctx, q, id); err != nil {
			return err
		}
		return fmt.Errorf("request %s: invalid status transition to %s", id, status)
	}
	return nil
}

type RequestFilters struct {
	Statuses []string
	Limit    int
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.DevRequest, error) {
	var clauses []string
	var args []any
	if len(f.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + requestColumns + ` FROM dev_requests ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.DevRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
