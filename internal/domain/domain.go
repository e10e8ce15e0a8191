package domain

// TimeLayout is the fixed-width UTC layout used for stored timestamps so that
// lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Request lifecycle states.
const (
	RequestPending   = "pending"
	RequestAnalyzing = "analyzing"
	RequestBuilding  = "building"
	RequestCompleted = "completed"
	RequestFailed    = "failed"
	RequestReverted  = "reverted"
)

// Build step states.
const (
	StepPending   = "pending"
	StepRunning   = "running"
	StepCompleted = "completed"
	StepFailed    = "failed"
)

// Step types.
const (
	StepAnalysis         = "analysis"
	StepSchemaGeneration = "schema_generation"
	StepCodeGeneration   = "code_generation"
	StepPolicyGeneration = "policy_generation"
	StepIntegration      = "integration"
	StepTesting          = "testing"
)

// Artifact types.
const (
	ArtifactTableSchema = "table_schema"
	ArtifactComponent   = "component"
	ArtifactRLSPolicy   = "rls_policy"
	ArtifactIntegration = "integration"
)

// Predicted artifact categories produced by analysis.
const (
	CategoryTableSchema        = "table_schema"
	CategoryFormComponent      = "form_component"
	CategoryDashboardComponent = "dashboard_component"
	CategoryEdgeFunction       = "edge_function"
)

type DevRequest struct {
	ID                 string   `json:"id"`
	Prompt             string   `json:"prompt"`
	RequestType        string   `json:"request_type"`
	TargetUsers        []string `json:"target_users"`
	BuildMode          string   `json:"build_mode"`
	UseCivicMemory     bool     `json:"use_civic_memory"`
	PreviewBeforeBuild bool     `json:"preview_before_build"`
	Status             string   `json:"status" enum:"pending,analyzing,building,completed,failed,reverted"`
	SourceRequestID    *string  `json:"source_request_id,omitempty"`
	ErrorMessage       *string  `json:"error_message,omitempty"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
	StartedAt          *string  `json:"started_at,omitempty" format:"date-time"`
	CompletedAt        *string  `json:"completed_at,omitempty" format:"date-time"`
	BuildDurationMS    *int64   `json:"build_duration_ms,omitempty"`
}

type BuildStep struct {
	ID               string   `json:"id"`
	RequestID        string   `json:"request_id"`
	StepName         string   `json:"step_name"`
	StepType         string   `json:"step_type"`
	StepOrder        int      `json:"step_order"`
	Status           string   `json:"status" enum:"pending,running,completed,failed"`
	Produces         string   `json:"produces,omitempty"`
	Requires         []string `json:"requires,omitempty"`
	StartedAt        *string  `json:"started_at,omitempty" format:"date-time"`
	CompletedAt      *string  `json:"completed_at,omitempty" format:"date-time"`
	OutputArtifactID *string  `json:"output_artifact_id,omitempty"`
	ErrorMessage     *string  `json:"error_message,omitempty"`
}

// Terminal reports whether the step can no longer transition.
func (s BuildStep) Terminal() bool {
	return s.Status == StepCompleted || s.Status == StepFailed
}

type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	Default    string `json:"default,omitempty"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	References string `json:"references,omitempty"`
}

type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

type Constraint struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Definition string `json:"definition"`
}

type Policy struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Command   string `json:"command"`
	Using     string `json:"using,omitempty"`
	WithCheck string `json:"with_check,omitempty"`
}

// SchemaDefinition is the structured companion of a schema or policy artifact.
type SchemaDefinition struct {
	Table       string       `json:"table,omitempty"`
	Columns     []Column     `json:"columns,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty"`
	Constraints []Constraint `json:"constraints,omitempty"`
	Policies    []Policy     `json:"policies,omitempty"`
}

type GeneratedArtifact struct {
	ID               string            `json:"id"`
	RequestID        string            `json:"request_id"`
	ArtifactType     string            `json:"artifact_type" enum:"table_schema,component,rls_policy,integration"`
	ArtifactName     string            `json:"artifact_name"`
	FilePath         *string           `json:"file_path,omitempty"`
	GeneratedCode    string            `json:"generated_code"`
	SchemaDefinition *SchemaDefinition `json:"schema_definition,omitempty"`
	LinkedModules    []string          `json:"linked_modules"`
	CreatedAt        string            `json:"created_at" format:"date-time"`
	RevertedAt       *string           `json:"reverted_at,omitempty" format:"date-time"`
	RevertReason     *string           `json:"revert_reason,omitempty"`
}

// Active reports whether the artifact has not been reverted.
func (a GeneratedArtifact) Active() bool {
	return a.RevertedAt == nil
}

type CivicMemoryPattern struct {
	ID          string  `json:"id"`
	PatternName string  `json:"pattern_name"`
	PatternType string  `json:"pattern_type"`
	Description string  `json:"description,omitempty"`
	UsageCount  int     `json:"usage_count"`
	SuccessRate float64 `json:"success_rate"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Role struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	RequestID  string `json:"request_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// AnalysisResult is the outcome of inspecting a prompt.
type AnalysisResult struct {
	Complexity          int      `json:"complexity"`
	PredictedArtifacts  []string `json:"predicted_artifacts"`
	EntityName          string   `json:"entity_name"`
	TargetRoles         []string `json:"target_roles"`
	LinkedModules       []string `json:"linked_modules,omitempty"`
	UsedDefaultArtifact bool     `json:"used_default_artifact,omitempty"`
}

// Predicts reports whether the analysis predicted the given category.
func (a AnalysisResult) Predicts(category string) bool {
	for _, c := range a.PredictedArtifacts {
		if c == category {
			return true
		}
	}
	return false
}

// HealthReport summarises recent build outcomes.
type HealthReport struct {
	SuccessRate float64 `json:"success_rate"`
	Status      string  `json:"status" enum:"healthy,warning,critical"`
	Completed   int     `json:"completed"`
	Total       int     `json:"total"`
}

type StatusReport struct {
	RecentRequests  []DevRequest         `json:"recent_requests"`
	ActiveRequests  []DevRequest         `json:"active_requests"`
	RecentArtifacts []GeneratedArtifact  `json:"recent_artifacts"`
	Patterns        []CivicMemoryPattern `json:"patterns"`
	Health          HealthReport         `json:"health"`
}
