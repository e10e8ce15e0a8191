package repo

import (
	"context"
	"database/sql"

	"devterminal/internal/domain"
)

// EnsureRole registers a role id, leaving an existing row untouched.
func (r Repo) EnsureRole(ctx context.Context, q Querier, id, desc string) error {
	_, err := r.q(q).ExecContext(ctx, `INSERT OR IGNORE INTO roles(id, description) VALUES (?,?)`, id, nullable(desc))
	return err
}

func (r Repo) RoleExists(ctx context.Context, id string) (bool, error) {
	var found string
	err := r.DB.QueryRowContext(ctx, `SELECT id FROM roles WHERE id=?`, id).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, description FROM roles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Role{}
	for rows.Next() {
		var role domain.Role
		var desc sql.NullString
		if err := rows.Scan(&role.ID, &desc); err != nil {
			return nil, err
		}
		role.Description = desc.String
		res = append(res, role)
	}
	return res, rows.Err()
}

// ListPatterns returns civic memory patterns by descending usage.
func (r Repo) ListPatterns(ctx context.Context, limit int) ([]domain.CivicMemoryPattern, error) {
	query := `SELECT id, pattern_name, pattern_type, description, usage_count, success_rate, created_at FROM civic_memory_patterns ORDER BY usage_count DESC, pattern_name`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.CivicMemoryPattern{}
	for rows.Next() {
		var p domain.CivicMemoryPattern
		var desc sql.NullString
		if err := rows.Scan(&p.ID, &p.PatternName, &p.PatternType, &desc, &p.UsageCount, &p.SuccessRate, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Description = desc.String
		res = append(res, p)
	}
	return res, rows.Err()
}

type EventFilters struct {
	RequestID string
	AfterID   int64
	Limit     int
	// Latest keeps the last Limit events instead of the first.
	Latest bool
}

// ListEvents returns audit events in append order.
func (r Repo) ListEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	query := `SELECT id, ts, type, request_id, entity_kind, entity_id, actor_id, payload_json FROM events WHERE id>?`
	args := []any{f.AfterID}
	if f.RequestID != "" {
		query += " AND request_id=?"
		args = append(args, f.RequestID)
	}
	switch {
	case f.Latest && f.Limit > 0:
		query = `SELECT * FROM (` + query + ` ORDER BY id DESC LIMIT ?) ORDER BY id`
		args = append(args, f.Limit)
	case f.Limit > 0:
		query += " ORDER BY id LIMIT ?"
		args = append(args, f.Limit)
	default:
		query += " ORDER BY id"
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		var reqID, entityID sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &reqID, &e.EntityKind, &entityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		e.RequestID = reqID.String
		e.EntityID = entityID.String
		res = append(res, e)
	}
	return res, rows.Err()
}
