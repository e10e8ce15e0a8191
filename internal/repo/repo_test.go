package repo_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devterminal/internal/db"
	"devterminal/internal/domain"
	"devterminal/internal/events"
	"devterminal/internal/migrate"
	"devterminal/internal/repo"
)

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func insertRequest(t *testing.T, r repo.Repo, id, status, createdAt string) domain.DevRequest {
	t.Helper()
	req := domain.DevRequest{
		ID:          id,
		Prompt:      "create a village feedback form",
		RequestType: "plugin",
		TargetUsers: []string{"public"},
		BuildMode:   "think_first",
		Status:      status,
		CreatedAt:   createdAt,
	}
	require.NoError(t, r.InsertRequest(context.Background(), nil, req))
	return req
}

func TestRequestRoundTripAndGuardedStatus(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insertRequest(t, r, "r1", domain.RequestAnalyzing, "2024-01-01T00:00:00.000000Z")

	got, err := r.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"public"}, got.TargetUsers)
	assert.Nil(t, got.SourceRequestID)

	err = r.UpdateRequestStatus(ctx, nil, "r1", domain.RequestCompleted, repo.RequestUpdate{}, domain.RequestBuilding)
	assert.Error(t, err)

	msg := "boom"
	require.NoError(t, r.UpdateRequestStatus(ctx, nil, "r1", domain.RequestFailed, repo.RequestUpdate{ErrorMessage: &msg}, domain.RequestAnalyzing))
	got, err = r.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RequestFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "boom", *got.ErrorMessage)

	_, err = r.GetRequest(ctx, "missing")
	assert.True(t, errors.Is(err, repo.ErrNotFound))
}

func TestListRequestsNewestFirst(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insertRequest(t, r, "a", domain.RequestCompleted, "2024-01-01T00:00:00.000001Z")
	insertRequest(t, r, "b", domain.RequestBuilding, "2024-01-01T00:00:00.000002Z")
	insertRequest(t, r, "c", domain.RequestAnalyzing, "2024-01-01T00:00:00.000003Z")

	all, err := r.ListRequests(ctx, repo.RequestFilters{Limit: 2})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "c", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	active, err := r.ListRequests(ctx, repo.RequestFilters{Statuses: []string{domain.RequestAnalyzing, domain.RequestBuilding}})
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestStepTransitionsAreGuarded(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insertRequest(t, r, "r1", domain.RequestBuilding, "2024-01-01T00:00:00.000000Z")
	steps := []domain.BuildStep{
		{ID: "s1", RequestID: "r1", StepName: "Generate Database Schema", StepType: domain.StepSchemaGeneration, StepOrder: 1, Status: domain.StepPending, Produces: domain.ArtifactTableSchema},
		{ID: "s2", RequestID: "r1", StepName: "Generate Access Policies", StepType: domain.StepPolicyGeneration, StepOrder: 2, Status: domain.StepPending, Produces: domain.ArtifactRLSPolicy, Requires: []string{domain.ArtifactTableSchema}},
	}
	require.NoError(t, r.WithTx(ctx, func(tx *sql.Tx) error { return r.InsertSteps(ctx, tx, steps) }))

	assert.Error(t, r.CompleteStep(ctx, nil, "s1", "t1", ""), "pending step cannot complete")
	require.NoError(t, r.MarkStepRunning(ctx, nil, "s1", "t1"))
	assert.Error(t, r.MarkStepRunning(ctx, nil, "s1", "t2"), "running step cannot restart")
	require.NoError(t, r.CompleteStep(ctx, nil, "s1", "t2", ""))
	assert.Error(t, r.FailStep(ctx, nil, "s1", "t3", "late"), "completed step is terminal")
	require.NoError(t, r.FailStep(ctx, nil, "s2", "t3", "no schema"))

	listed, err := r.ListSteps(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, domain.StepCompleted, listed[0].Status)
	assert.Nil(t, listed[0].OutputArtifactID)
	assert.Equal(t, domain.StepFailed, listed[1].Status)
	assert.Equal(t, []string{domain.ArtifactTableSchema}, listed[1].Requires)
	require.NotNil(t, listed[1].ErrorMessage)
	assert.Equal(t, "no schema", *listed[1].ErrorMessage)
}

func TestRevertArtifactsKeepsFirstStamp(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()
	insertRequest(t, r, "r1", domain.RequestCompleted, "2024-01-01T00:00:00.000000Z")
	insertRequest(t, r, "r2", domain.RequestCompleted, "2024-01-01T00:00:00.000001Z")
	for _, a := range []domain.GeneratedArtifact{
		{ID: "a1", RequestID: "r1", ArtifactType: domain.ArtifactTableSchema, ArtifactName: "village_feedback", GeneratedCode: "CREATE TABLE", CreatedAt: "2024-01-01T00:00:01.000000Z",
			SchemaDefinition: &domain.SchemaDefinition{Table: "village_feedback", Columns: []domain.Column{{Name: "id", Type: "uuid", PrimaryKey: true}}}},
		{ID: "a2", RequestID: "r1", ArtifactType: domain.ArtifactComponent, ArtifactName: "VillageFeedbackForm", GeneratedCode: "export", CreatedAt: "2024-01-01T00:00:02.000000Z"},
		{ID: "a3", RequestID: "r2", ArtifactType: domain.ArtifactTableSchema, ArtifactName: "village_feedback", GeneratedCode: "CREATE TABLE", CreatedAt: "2024-01-01T00:00:03.000000Z"},
	} {
		require.NoError(t, r.InsertArtifact(ctx, nil, a))
	}

	got, err := r.GetArtifact(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got.SchemaDefinition)
	assert.Equal(t, "village_feedback", got.SchemaDefinition.Table)

	n, err := r.RevertArtifacts(ctx, nil, "r1", "2024-01-02T00:00:00.000000Z", "first")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	n, err = r.RevertArtifacts(ctx, nil, "r1", "2024-01-03T00:00:00.000000Z", "second")
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	items, err := r.ListArtifacts(ctx, nil, repo.ArtifactFilters{RequestID: "r1"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, a := range items {
		require.NotNil(t, a.RevertReason)
		assert.Equal(t, "first", *a.RevertReason)
		assert.False(t, a.Active())
	}

	active, err := r.ListArtifacts(ctx, nil, repo.ArtifactFilters{Type: domain.ArtifactTableSchema, Name: "village_feedback", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a3", active[0].ID)
}

func TestCatalogAndEventTail(t *testing.T) {
	r := newRepo(t)
	ctx := context.Background()

	roles, err := r.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 4)
	require.NoError(t, r.EnsureRole(ctx, nil, "auditor", "Read-only auditors"))
	require.NoError(t, r.EnsureRole(ctx, nil, "auditor", "ignored"))
	ok, err := r.RoleExists(ctx, "auditor")
	require.NoError(t, err)
	assert.True(t, ok)

	patterns, err := r.ListPatterns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	assert.GreaterOrEqual(t, patterns[0].UsageCount, patterns[1].UsageCount)

	insertRequest(t, r, "r1", domain.RequestAnalyzing, "2024-01-01T00:00:00.000000Z")
	w := events.Writer{}
	for _, typ := range []string{events.RequestCreated, events.RequestAnalyzed, events.RequestBuilding} {
		require.NoError(t, w.Append(ctx, r.DB, typ, "r1", "request", "r1", "", nil))
	}
	tail, err := r.ListEvents(ctx, repo.EventFilters{RequestID: "r1", Limit: 2, Latest: true})
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, events.RequestAnalyzed, tail[0].Type)
	assert.Equal(t, events.RequestBuilding, tail[1].Type)
	assert.Equal(t, "system", tail[1].ActorID)

	head, err := r.ListEvents(ctx, repo.EventFilters{Limit: 1})
	require.NoError(t, err)
	require.Len(t, head, 1)
	assert.Equal(t, events.RequestCreated, head[0].Type)
}
