// Package generator synthesizes artifacts for build steps. Each step type has
// one Generator registered under its tag; generators are deterministic in the
// prompt text and never reach outside the process.
package generator

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"devterminal/internal/config"
	"devterminal/internal/domain"
	"devterminal/internal/prompt"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"join": strings.Join,
}).ParseFS(templateFS, "templates/*.tmpl"))

// Input is what a generator sees: the owning request, the step being run and
// the artifacts produced earlier in the same run.
type Input struct {
	Request domain.DevRequest
	Step    domain.BuildStep
	Prior   []domain.GeneratedArtifact
}

func (in Input) lower() string {
	return prompt.Normalize(in.Request.Prompt)
}

// latest returns the most recent prior artifact of the given type.
func (in Input) latest(artifactType string) (domain.GeneratedArtifact, bool) {
	for i := len(in.Prior) - 1; i >= 0; i-- {
		if in.Prior[i].ArtifactType == artifactType {
			return in.Prior[i], true
		}
	}
	return domain.GeneratedArtifact{}, false
}

// Generator produces at most one artifact for a step. A nil artifact with a
// nil error means the step completed without output.
type Generator interface {
	Generate(ctx context.Context, in Input) (*domain.GeneratedArtifact, error)
}

type GeneratorFunc func(ctx context.Context, in Input) (*domain.GeneratedArtifact, error)

func (f GeneratorFunc) Generate(ctx context.Context, in Input) (*domain.GeneratedArtifact, error) {
	return f(ctx, in)
}

// Analyzer is the analysis capability the analysis step re-runs.
type Analyzer interface {
	Analyze(ctx context.Context, text, requestType string) (domain.AnalysisResult, error)
}

// Settings are the naming roots generators write into artifacts.
type Settings struct {
	SchemaName       string
	DefaultEntity    string
	UserTable        string
	RoleTable        string
	DefaultRole      string
	ComponentsRoot   string
	IntegrationsRoot string
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		SchemaName:       cfg.Schema.SchemaName,
		DefaultEntity:    cfg.Schema.DefaultEntity,
		UserTable:        cfg.Schema.UserTable,
		RoleTable:        cfg.Policies.RoleTable,
		DefaultRole:      cfg.Policies.DefaultRole,
		ComponentsRoot:   cfg.Components.Root,
		IntegrationsRoot: cfg.Integrations.Root,
	}
}

// Registry maps step types to generators.
type Registry map[string]Generator

// NewRegistry registers the built-in generators for every step type.
func NewRegistry(s Settings, an Analyzer) Registry {
	return Registry{
		domain.StepAnalysis:         AnalysisCheck{Analyzer: an},
		domain.StepSchemaGeneration: Schema{Settings: s},
		domain.StepPolicyGeneration: Policy{Settings: s},
		domain.StepCodeGeneration:   Component{Settings: s},
		domain.StepIntegration:      Integration{Settings: s},
		domain.StepTesting:          Verify{},
	}
}

func (r Registry) Lookup(stepType string) (Generator, error) {
	g, ok := r[stepType]
	if !ok {
		return nil, fmt.Errorf("no generator registered for step type %q", stepType)
	}
	return g, nil
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func strPtr(s string) *string {
	return &s
}
