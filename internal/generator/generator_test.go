package generator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devterminal/internal/config"
	"devterminal/internal/domain"
)

func testSettings() Settings {
	return SettingsFromConfig(config.Default())
}

func input(p string, prior ...domain.GeneratedArtifact) Input {
	return Input{Request: domain.DevRequest{ID: "req-1", Prompt: p, RequestType: "plugin"}, Prior: prior}
}

func generate(t *testing.T, g Generator, in Input) domain.GeneratedArtifact {
	t.Helper()
	a, err := g.Generate(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, a)
	return *a
}

func TestSchemaVillageFeedback(t *testing.T) {
	a := generate(t, Schema{Settings: testSettings()}, input("create a village feedback form"))
	assert.Equal(t, domain.ArtifactTableSchema, a.ArtifactType)
	assert.Equal(t, "village_feedback", a.ArtifactName)
	assert.Contains(t, a.GeneratedCode, "CREATE TABLE public.village_feedback (")
	for _, col := range []string{"id", "created_at", "updated_at", "title", "description", "category", "status", "user_id"} {
		assert.Contains(t, a.GeneratedCode, "\n  "+col+" ", col)
	}
	assert.Contains(t, a.GeneratedCode, "CONSTRAINT fk_village_feedback_user_id FOREIGN KEY (user_id) REFERENCES auth.users(id)")
	assert.Contains(t, a.GeneratedCode, "CREATE INDEX idx_village_feedback_status ON public.village_feedback (status);")
	assert.Equal(t, []string{"village_profiles", "citizen_feedback"}, a.LinkedModules)

	require.NotNil(t, a.SchemaDefinition)
	cols := a.SchemaDefinition.Columns
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, "created_at", cols[len(cols)-2].Name)
	assert.Equal(t, "updated_at", cols[len(cols)-1].Name)
	var idx []string
	for _, i := range a.SchemaDefinition.Indexes {
		idx = append(idx, i.Columns[0])
	}
	assert.Equal(t, []string{"user_id", "status", "category", "created_at"}, idx)
}

func TestSchemaMinimalAndOptionalColumns(t *testing.T) {
	g := Schema{Settings: testSettings()}
	minimal := g.Define("generated_feature", "do something vague")
	require.Len(t, minimal.Columns, 3)
	assert.Empty(t, minimal.Constraints)

	rated := g.Define("park", "rate parks by location with a score")
	var names []string
	for _, c := range rated.Columns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"id", "region", "rating", "created_at", "updated_at"}, names)
	require.Len(t, rated.Constraints, 1)
	assert.Equal(t, "chk_park_rating", rated.Constraints[0].Name)
}

func TestPolicyNeedsSchema(t *testing.T) {
	_, err := Policy{Settings: testSettings()}.Generate(context.Background(), input("village feedback for citizens"))
	require.Error(t, err)
}

func TestPolicyRoles(t *testing.T) {
	s := testSettings()
	schema := generate(t, Schema{Settings: s}, input("citizen complaints for admins and ministers"))
	a := generate(t, Policy{Settings: s}, input("citizen complaints for admins and ministers", schema))
	assert.Equal(t, domain.ArtifactRLSPolicy, a.ArtifactType)
	assert.Equal(t, "citizen_complaint_policies", a.ArtifactName)
	assert.Contains(t, a.GeneratedCode, "ALTER TABLE public.citizen_complaint ENABLE ROW LEVEL SECURITY;")
	assert.Contains(t, a.GeneratedCode, `CREATE POLICY "citizen_complaint_public_insert" ON public.citizen_complaint`+"\n  FOR INSERT\n  WITH CHECK (auth.uid() = user_id);")
	assert.Contains(t, a.GeneratedCode, "FOR SELECT\n  USING (true);")
	assert.Contains(t, a.GeneratedCode, "FOR ALL\n  USING (EXISTS (SELECT 1 FROM public.user_roles WHERE user_id = auth.uid() AND role = 'admin'))")
	assert.Contains(t, a.GeneratedCode, "role = 'minister'")
	assert.NotContains(t, a.GeneratedCode, "role = 'researcher'")
	require.NotNil(t, a.SchemaDefinition)
	assert.Len(t, a.SchemaDefinition.Policies, 4)
}

func TestPolicyDefaultsToAdmin(t *testing.T) {
	s := testSettings()
	schema := generate(t, Schema{Settings: s}, input("create a village feedback form"))
	a := generate(t, Policy{Settings: s}, input("create a village feedback form", schema))
	require.Len(t, a.SchemaDefinition.Policies, 1)
	assert.Equal(t, "admin", a.SchemaDefinition.Policies[0].Role)
	assert.Equal(t, "ALL", a.SchemaDefinition.Policies[0].Command)
}

func TestComponentKinds(t *testing.T) {
	g := Component{Settings: testSettings()}

	form := generate(t, g, input("build a citizen complaint form"))
	assert.Equal(t, "CitizenComplaintForm", form.ArtifactName)
	require.NotNil(t, form.FilePath)
	assert.Equal(t, "src/components/Public/CitizenComplaintForm.tsx", *form.FilePath)
	assert.Contains(t, form.GeneratedCode, `supabase.from("citizencomplaint").insert`)
	assert.Contains(t, form.GeneratedCode, `title: "", description: "", category: "", region: ""`)

	dash := generate(t, g, input("an admin dashboard to manage petitions"))
	assert.Equal(t, "PetitionDashboard", dash.ArtifactName)
	assert.Equal(t, "src/components/Admin/PetitionDashboard.tsx", *dash.FilePath)
	assert.Contains(t, dash.GeneratedCode, `.from("petition")`)
	assert.Contains(t, dash.GeneratedCode, `.order("created_at", { ascending: false })`)

	generic := generate(t, g, input("do something vague"))
	assert.Equal(t, "GeneratedFeaturePanel", generic.ArtifactName)
	assert.Equal(t, "src/components/Shared/GeneratedFeaturePanel.tsx", *generic.FilePath)
	assert.NotContains(t, generic.GeneratedCode, "supabase")
}

func TestComponentTableFragility(t *testing.T) {
	assert.Equal(t, "citizencomplaint", ComponentTable("CitizenComplaintForm", "form"))
	assert.Equal(t, "platform", ComponentTable("PlatformForm", "form"))
	assert.Equal(t, "", ComponentTable("Dashboard", "dashboard"))
	assert.Equal(t, "", ComponentTable("NoticePanel", "generic"))
}

func TestIntegration(t *testing.T) {
	a := generate(t, Integration{Settings: testSettings()}, input("scrape village news from the gazette"))
	assert.Equal(t, domain.ArtifactIntegration, a.ArtifactType)
	assert.Equal(t, "villageScraper", a.ArtifactName)
	require.NotNil(t, a.FilePath)
	assert.Equal(t, "supabase/functions/village-scraper/index.ts", *a.FilePath)
	assert.Contains(t, a.GeneratedCode, "export async function villageScraper(")
	assert.Contains(t, a.GeneratedCode, "return { success: true, data };")
	assert.Contains(t, a.GeneratedCode, "return { success: false, error:")
}

func TestIntegrationDefaultsToService(t *testing.T) {
	a := generate(t, Integration{Settings: testSettings()}, input("sync budget numbers"))
	assert.Equal(t, "budgetService", a.ArtifactName)
}

func TestGeneratorsAreDeterministic(t *testing.T) {
	reg := NewRegistry(testSettings(), nil)
	p := "citizens track complaint ratings per region on a dashboard with an api"
	for _, stepType := range []string{domain.StepSchemaGeneration, domain.StepCodeGeneration, domain.StepIntegration} {
		g, err := reg.Lookup(stepType)
		require.NoError(t, err)
		first := generate(t, g, input(p))
		second := generate(t, g, input(p))
		assert.Equal(t, first, second, stepType)
	}
}

func TestRegistryLookupUnknown(t *testing.T) {
	_, err := NewRegistry(testSettings(), nil).Lookup("deploy")
	require.Error(t, err)
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, string, string) (domain.AnalysisResult, error) {
	return domain.AnalysisResult{}, errors.New("analyzer offline")
}

func TestAnalysisCheck(t *testing.T) {
	a, err := AnalysisCheck{}.Generate(context.Background(), input("anything"))
	require.NoError(t, err)
	assert.Nil(t, a)
	_, err = AnalysisCheck{Analyzer: failingAnalyzer{}}.Generate(context.Background(), input("anything"))
	require.EqualError(t, err, "analyzer offline")
}

func TestVerify(t *testing.T) {
	s := testSettings()
	schema := generate(t, Schema{Settings: s}, input("village feedback"))
	policy := generate(t, Policy{Settings: s}, input("village feedback", schema))

	a, err := Verify{}.Generate(context.Background(), input("village feedback", schema, policy))
	require.NoError(t, err)
	assert.Nil(t, a)

	broken := schema
	broken.GeneratedCode = "DROP TABLE x;"
	_, err = Verify{}.Generate(context.Background(), input("village feedback", broken))
	require.Error(t, err)

	empty := policy
	empty.GeneratedCode = "  "
	_, err = Verify{}.Generate(context.Background(), input("village feedback", empty))
	require.Error(t, err)
}
