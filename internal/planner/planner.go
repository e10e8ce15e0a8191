// Package planner turns an AnalysisResult into the ordered step plan of a
// request. Planning is a pure function: no I/O, no clock.
package planner

import (
	"fmt"

	"devterminal/internal/domain"
)

// Step describes one planned unit of work. Produces and Requires name
// artifact types and make ordering between steps explicit.
type Step struct {
	Name     string
	Type     string
	Produces string
	Requires []string
}

var (
	analysisStep    = Step{Name: "Analyze Requirements", Type: domain.StepAnalysis}
	schemaStep      = Step{Name: "Generate Database Schema", Type: domain.StepSchemaGeneration, Produces: domain.ArtifactTableSchema}
	policyStep      = Step{Name: "Generate Access Policies", Type: domain.StepPolicyGeneration, Produces: domain.ArtifactRLSPolicy, Requires: []string{domain.ArtifactTableSchema}}
	componentStep   = Step{Name: "Generate UI Component", Type: domain.StepCodeGeneration, Produces: domain.ArtifactComponent}
	integrationStep = Step{Name: "Generate Edge Integration", Type: domain.StepIntegration, Produces: domain.ArtifactIntegration}
	testingStep     = Step{Name: "Run Tests", Type: domain.StepTesting}
)

// Plan maps predicted categories to steps. The plan always starts with
// analysis and ends with testing, and a schema step always precedes its
// policies.
func Plan(res domain.AnalysisResult) []Step {
	steps := []Step{analysisStep}
	if res.Predicts(domain.CategoryTableSchema) {
		steps = append(steps, schemaStep, policyStep)
	}
	if res.Predicts(domain.CategoryFormComponent) || res.Predicts(domain.CategoryDashboardComponent) {
		steps = append(steps, componentStep)
	}
	if res.Predicts(domain.CategoryEdgeFunction) {
		steps = append(steps, integrationStep)
	}
	return append(steps, testingStep)
}

// Validate checks that every requirement is produced by an earlier step.
func Validate(steps []Step) error {
	produced := map[string]bool{}
	for i, s := range steps {
		for _, req := range s.Requires {
			if !produced[req] {
				return fmt.Errorf("step %d (%s) requires %s which no earlier step produces", i+1, s.Type, req)
			}
		}
		if s.Produces != "" {
			produced[s.Produces] = true
		}
	}
	return nil
}

// Materialize assigns ids and 1-based order indices, yielding pending build
// steps for requestID.
func Materialize(requestID string, steps []Step, newID func() string) []domain.BuildStep {
	out := make([]domain.BuildStep, 0, len(steps))
	for i, s := range steps {
		var requires []string
		if len(s.Requires) > 0 {
			requires = append(requires, s.Requires...)
		}
		out = append(out, domain.BuildStep{
			ID:        newID(),
			RequestID: requestID,
			StepName:  s.Name,
			StepType:  s.Type,
			StepOrder: i + 1,
			Status:    domain.StepPending,
			Produces:  s.Produces,
			Requires:  requires,
		})
	}
	return out
}
