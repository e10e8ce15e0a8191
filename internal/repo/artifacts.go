package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"devterminal/internal/domain"
)

const artifactColumns = `id,request_id,artifact_type,artifact_name,file_path,generated_code,schema_definition_json,linked_modules_json,created_at,reverted_at,revert_reason`

func scanArtifact(row rowScanner) (domain.GeneratedArtifact, error) {
	var (
		a                      domain.GeneratedArtifact
		filePath, schemaJSON   sql.NullString
		linked                 sql.NullString
		revertedAt, revertNote sql.NullString
	)
	err := row.Scan(&a.ID, &a.RequestID, &a.ArtifactType, &a.ArtifactName, &filePath, &a.GeneratedCode, &schemaJSON,
		&linked, &a.CreatedAt, &revertedAt, &revertNote)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.FilePath = stringPtr(filePath)
	if schemaJSON.Valid && schemaJSON.String != "" {
		var def domain.SchemaDefinition
		if err := json.Unmarshal([]byte(schemaJSON.String), &def); err != nil {
			return a, err
		}
		a.SchemaDefinition = &def
	}
	a.LinkedModules = unmarshalStrings(linked)
	a.RevertedAt = stringPtr(revertedAt)
	a.RevertReason = stringPtr(revertNote)
	return a, nil
}

func (r Repo) InsertArtifact(ctx context.Context, q Querier, a domain.GeneratedArtifact) error {
	linked, err := marshalStrings(a.LinkedModules)
	if err != nil {
		return err
	}
	var schemaJSON any
	if a.SchemaDefinition != nil {
		b, err := json.Marshal(a.SchemaDefinition)
		if err != nil {
			return err
		}
		schemaJSON = string(b)
	}
	_, err = r.q(q).ExecContext(ctx, `INSERT INTO generated_artifacts(`+artifactColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.RequestID, a.ArtifactType, a.ArtifactName, nullableStringPtr(a.FilePath), a.GeneratedCode, schemaJSON,
		linked, a.CreatedAt, nullableStringPtr(a.RevertedAt), nullableStringPtr(a.RevertReason))
	return err
}

func (r Repo) GetArtifact(ctx context.Context, id string) (domain.GeneratedArtifact, error) {
	return scanArtifact(r.DB.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM generated_artifacts WHERE id=?`, id))
}

type ArtifactFilters struct {
	RequestID        string
	ExcludeRequestID string
	Type             string
	Name             string
	ActiveOnly       bool
	Limit            int
}

// ListArtifacts returns artifacts newest first, or in creation order when
// scoped to a single request.
func (r Repo) ListArtifacts(ctx context.Context, q Querier, f ArtifactFilters) ([]domain.GeneratedArtifact, error) {
	var clauses []string
	var args []any
	if f.RequestID != "" {
		clauses = append(clauses, "request_id=?")
		args = append(args, f.RequestID)
	}
	if f.ExcludeRequestID != "" {
		clauses = append(clauses, "request_id<>?")
		args = append(args, f.ExcludeRequestID)
	}
	if f.Type != "" {
		clauses = append(clauses, "artifact_type=?")
		args = append(args, f.Type)
	}
	if f.Name != "" {
		clauses = append(clauses, "artifact_name=?")
		args = append(args, f.Name)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "reverted_at IS NULL")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	order := "created_at DESC, id DESC"
	if f.RequestID != "" {
		order = "created_at, rowid"
	}
	query := `SELECT ` + artifactColumns + ` FROM generated_artifacts ` + where + ` ORDER BY ` + order
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.q(q).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.GeneratedArtifact{}
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// RevertArtifacts stamps every still-active artifact of a request. Artifacts
// reverted earlier keep their original timestamp and reason.
func (r Repo) RevertArtifacts(ctx context.Context, q Querier, requestID, now, reason string) (int64, error) {
	res, err := r.q(q).ExecContext(ctx, `UPDATE generated_artifacts SET reverted_at=?, revert_reason=? WHERE request_id=? AND reverted_at IS NULL`,
		now, reason, requestID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
