package generator

import (
	"context"
	"fmt"
	"strings"

	"devterminal/internal/domain"
)

// AnalysisCheck re-runs the analyzer for the analysis step. It produces no
// artifact.
type AnalysisCheck struct {
	Analyzer Analyzer
}

func (g AnalysisCheck) Generate(ctx context.Context, in Input) (*domain.GeneratedArtifact, error) {
	if g.Analyzer == nil {
		return nil, nil
	}
	if _, err := g.Analyzer.Analyze(ctx, in.Request.Prompt, in.Request.RequestType); err != nil {
		return nil, err
	}
	return nil, nil
}

// Verify checks the artifacts produced earlier in the run. It produces no
// artifact.
type Verify struct{}

func (Verify) Generate(_ context.Context, in Input) (*domain.GeneratedArtifact, error) {
	for _, a := range in.Prior {
		if strings.TrimSpace(a.GeneratedCode) == "" {
			return nil, fmt.Errorf("artifact %s (%s) is empty", a.ArtifactName, a.ArtifactType)
		}
		switch a.ArtifactType {
		case domain.ArtifactTableSchema:
			if !strings.Contains(a.GeneratedCode, "CREATE TABLE") {
				return nil, fmt.Errorf("schema %s has no CREATE TABLE statement", a.ArtifactName)
			}
		case domain.ArtifactRLSPolicy:
			if !strings.Contains(a.GeneratedCode, "CREATE POLICY") {
				return nil, fmt.Errorf("policy artifact %s has no CREATE POLICY statement", a.ArtifactName)
			}
		}
	}
	return nil, nil
}
