package analyzer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devterminal/internal/domain"
)

func TestAnalyzeVillageFeedbackForm(t *testing.T) {
	res, err := New("generated_feature", "admin").Analyze(context.Background(), "create a village feedback form", "plugin")
	require.NoError(t, err)
	assert.True(t, res.Predicts(domain.CategoryTableSchema))
	assert.True(t, res.Predicts(domain.CategoryFormComponent))
	assert.False(t, res.UsedDefaultArtifact)
	assert.Equal(t, "village_feedback", res.EntityName)
	assert.Equal(t, []string{"admin"}, res.TargetRoles)
	assert.Equal(t, 5, res.Complexity)
}

func TestAnalyzeVagueDefaultsToDashboard(t *testing.T) {
	res, err := New("generated_feature", "admin").Analyze(context.Background(), "do something vague", "plugin")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.CategoryDashboardComponent}, res.PredictedArtifacts)
	assert.True(t, res.UsedDefaultArtifact)
	assert.Equal(t, "generated_feature", res.EntityName)
}

func TestAnalyzeRequestTypeCounts(t *testing.T) {
	res, err := New("generated_feature", "admin").Analyze(context.Background(), "news for the village", "integration")
	require.NoError(t, err)
	assert.True(t, res.Predicts(domain.CategoryEdgeFunction))
}

func TestAnalyzeEmptyPrompt(t *testing.T) {
	_, err := New("generated_feature", "admin").Analyze(context.Background(), "   ", "plugin")
	require.Error(t, err)
}

func TestComplexityIsBounded(t *testing.T) {
	long := strings.Repeat("citizens and admins and ministers and researchers track complaints ", 8) +
		"with a dashboard, a form and an api scraper"
	res, err := New("generated_feature", "admin").Analyze(context.Background(), long, "plugin")
	require.NoError(t, err)
	assert.Equal(t, MaxComplexity, res.Complexity)
	assert.Equal(t, MinComplexity, complexity(0, 0, 1))
}
