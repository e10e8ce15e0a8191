// Package analyzer turns a stored prompt into an AnalysisResult by keyword
// rules. It never calls out of process.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"devterminal/internal/domain"
	"devterminal/internal/prompt"
)

const (
	MinComplexity = 1
	MaxComplexity = 10
)

// Analyzer is the keyword-rule analyzer. DefaultEntity and DefaultRole are
// used when no rule matches.
type Analyzer struct {
	DefaultEntity string
	DefaultRole   string
}

func New(defaultEntity, defaultRole string) Analyzer {
	return Analyzer{DefaultEntity: defaultEntity, DefaultRole: defaultRole}
}

// Analyze inspects text and requestType together. Prompts that match no
// category fall back to a single dashboard component.
func (a Analyzer) Analyze(_ context.Context, text, requestType string) (domain.AnalysisResult, error) {
	if strings.TrimSpace(text) == "" {
		return domain.AnalysisResult{}, fmt.Errorf("analyze: empty prompt")
	}
	lower := prompt.Normalize(text + " " + requestType)
	res := domain.AnalysisResult{
		PredictedArtifacts: prompt.Categories.All(lower),
		EntityName:         prompt.EntityName(text, a.DefaultEntity),
		LinkedModules:      prompt.LinkedModules.All(lower),
	}
	if len(res.PredictedArtifacts) == 0 {
		res.PredictedArtifacts = []string{domain.CategoryDashboardComponent}
		res.UsedDefaultArtifact = true
	}
	roles := prompt.Roles.All(lower)
	res.Complexity = complexity(len(res.PredictedArtifacts), len(roles), len(strings.Fields(text)))
	if len(roles) == 0 {
		roles = []string{a.DefaultRole}
	}
	res.TargetRoles = roles
	return res, nil
}

func complexity(categories, roles, words int) int {
	score := MinComplexity + 2*categories
	if roles > 1 {
		score += roles - 1
	}
	if words > 20 {
		score++
	}
	if words > 50 {
		score++
	}
	if score > MaxComplexity {
		return MaxComplexity
	}
	return score
}
