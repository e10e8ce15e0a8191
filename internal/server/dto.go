package server

import (
	"devterminal/internal/domain"
)

// Action names accepted by the terminal endpoint.
const (
	ActionAnalyze = "analyze"
	ActionBuild   = "build"
	ActionPreview = "preview"
	ActionRevert  = "revert"
	ActionClone   = "clone"
	ActionStatus  = "status"
)

// Request payloads

type ActionOptions struct {
	Reason    string `json:"reason,omitempty" doc:"Revert reason"`
	Prompt    string `json:"prompt,omitempty" doc:"Replacement prompt for clone"`
	AutoBuild bool   `json:"autoBuild,omitempty" doc:"Build right after analysis"`
	Limit     int    `json:"limit,omitempty" doc:"Recent window for status"`
}

type ActionRequest struct {
	Action             string         `json:"action" doc:"analyze, build, preview, revert, clone or status"`
	Prompt             string         `json:"prompt,omitempty"`
	RequestType        string         `json:"requestType,omitempty"`
	TargetUsers        []string       `json:"targetUsers,omitempty"`
	BuildMode          string         `json:"buildMode,omitempty"`
	UseCivicMemory     bool           `json:"useCivicMemory,omitempty"`
	PreviewBeforeBuild bool           `json:"previewBeforeBuild,omitempty"`
	RequestID          string         `json:"requestId,omitempty"`
	Options            *ActionOptions `json:"options,omitempty"`
}

func (r ActionRequest) options() ActionOptions {
	if r.Options == nil {
		return ActionOptions{}
	}
	return *r.Options
}

// Response payloads

type AnalyzeResponse struct {
	Success   bool                       `json:"success"`
	Request   domain.DevRequest          `json:"request"`
	Analysis  domain.AnalysisResult      `json:"analysis"`
	Steps     []domain.BuildStep         `json:"steps"`
	Artifacts []domain.GeneratedArtifact `json:"artifacts,omitempty"`
}

type BuildResponse struct {
	Success   bool                       `json:"success"`
	Request   domain.DevRequest          `json:"request"`
	Artifacts []domain.GeneratedArtifact `json:"artifacts"`
}

type PreviewResponse struct {
	Success   bool                       `json:"success"`
	Request   domain.DevRequest          `json:"request"`
	Steps     []domain.BuildStep         `json:"steps"`
	Artifacts []domain.GeneratedArtifact `json:"artifacts"`
}

type RevertResponse struct {
	Success  bool              `json:"success"`
	Request  domain.DevRequest `json:"request"`
	Reverted int64             `json:"reverted"`
}

type CloneResponse struct {
	Success bool              `json:"success"`
	Request domain.DevRequest `json:"request"`
}

type StatusResponse struct {
	Success bool `json:"success"`
	domain.StatusReport
}

func nonNilSteps(items []domain.BuildStep) []domain.BuildStep {
	if items == nil {
		return []domain.BuildStep{}
	}
	return items
}

func nonNilArtifacts(items []domain.GeneratedArtifact) []domain.GeneratedArtifact {
	if items == nil {
		return []domain.GeneratedArtifact{}
	}
	return items
}
