package server

import (
	"approline/internal/domain"
	"approline/internal/workflow"
)

type SubmitProjectRequest struct {
	ID            *string `json:"id,omitempty"`
	Title         string  `json:"title"`
	Description   *string `json:"description,omitempty"`
	Sector        *string `json:"sector,omitempty"`
	Location      *string `json:"location,omitempty"`
	Authority     string  `json:"authority"`
	CapexUSD      *int64  `json:"capex_usd,omitempty"`
	OpexUSD       *int64  `json:"opex_usd,omitempty"`
	DurationYears *int    `json:"duration_years,omitempty"`
}

type DecisionRequest struct {
	Action  domain.Action `json:"action" enum:"FAVORABLE,RESERVE,REJET"`
	Comment string        `json:"comment"`
}

type ForceStageRequest struct {
	Stage  domain.StageID `json:"stage"`
	Reason string         `json:"reason"`
}

type AttachDocumentRequest struct {
	Name string  `json:"name"`
	Kind string  `json:"kind"`
	URL  *string `json:"url,omitempty"`
}

type ProfileRequest struct {
	Name                string      `json:"name"`
	Email               string      `json:"email"`
	Role                domain.Role `json:"role"`
	Department          *string     `json:"department,omitempty"`
	SupervisingMinistry *string     `json:"supervising_ministry,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorName string      `json:"actor_name"`
	Role      domain.Role `json:"role"`
	Name      *string     `json:"name,omitempty"`
}

type ProjectResponse struct {
	ID                  string            `json:"id"`
	Title               string            `json:"title"`
	Description         string            `json:"description,omitempty"`
	Sector              string            `json:"sector,omitempty"`
	Location            string            `json:"location,omitempty"`
	Stage               domain.StageID    `json:"stage"`
	StageLabel          string            `json:"stage_label"`
	Phase               domain.Phase      `json:"phase,omitempty"`
	Authority           string            `json:"authority"`
	SupervisingMinistry string            `json:"supervising_ministry,omitempty"`
	AuthorityType       string            `json:"authority_type,omitempty"`
	CapexUSD            int64             `json:"capex_usd,omitempty"`
	OpexUSD             int64             `json:"opex_usd,omitempty"`
	DurationYears       int               `json:"duration_years,omitempty"`
	Progress            int               `json:"progress"`
	CreatedAt           string            `json:"created_at"`
	UpdatedAt           string            `json:"updated_at"`
	History             []DecisionSummary `json:"history,omitempty"`
}

type DecisionSummary struct {
	TS        string         `json:"ts"`
	Action    domain.Action  `json:"action"`
	ActorRole domain.Role    `json:"actor_role"`
	ActorName string         `json:"actor_name"`
	Comment   string         `json:"comment"`
	NewStage  domain.StageID `json:"new_stage"`
}

type StageResponse struct {
	ID          domain.StageID `json:"id"`
	Label       string         `json:"label"`
	Description string         `json:"description,omitempty"`
	Phase       domain.Phase   `json:"phase"`
	GatingRole  domain.Role    `json:"gating_role"`
}

type APIKeyResponse struct {
	ID        string      `json:"id"`
	ActorName string      `json:"actor_name"`
	Role      domain.Role `json:"role"`
	Name      string      `json:"name,omitempty"`
	CreatedAt string      `json:"created_at"`
	// Key holds the clear key, returned only at creation time.
	Key string `json:"key,omitempty"`
}

// PublicProjectResponse is the citizen-portal view: no internal
// history, no financial breakdown beyond headline figures.
type PublicProjectResponse struct {
	ID         string         `json:"id"`
	Title      string         `json:"title"`
	Sector     string         `json:"sector,omitempty"`
	Location   string         `json:"location,omitempty"`
	Stage      domain.StageID `json:"stage"`
	StageLabel string         `json:"stage_label"`
	Progress   int            `json:"progress"`
}

func projectResponse(p domain.Project) ProjectResponse {
	phase, _ := workflow.PhaseOf(p.Stage)
	out := ProjectResponse{
		ID:                  p.ID,
		Title:               p.Title,
		Description:         p.Description,
		Sector:              p.Sector,
		Location:            p.Location,
		Stage:               p.Stage,
		StageLabel:          workflow.LabelOf(p.Stage),
		Phase:               phase,
		Authority:           p.Authority,
		SupervisingMinistry: p.SupervisingMinistry,
		AuthorityType:       p.AuthorityType,
		CapexUSD:            p.CapexUSD,
		OpexUSD:             p.OpexUSD,
		DurationYears:       p.DurationYears,
		Progress:            p.Progress,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
	for _, d := range p.History {
		out.History = append(out.History, DecisionSummary(d))
	}
	return out
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func publicProjectResponse(p domain.Project) PublicProjectResponse {
	return PublicProjectResponse{
		ID:         p.ID,
		Title:      p.Title,
		Sector:     p.Sector,
		Location:   p.Location,
		Stage:      p.Stage,
		StageLabel: workflow.LabelOf(p.Stage),
		Progress:   p.Progress,
	}
}

func stageResponses() []StageResponse {
	stages := workflow.Stages()
	out := make([]StageResponse, 0, len(stages))
	for _, s := range stages {
		out = append(out, StageResponse{
			ID:          s.ID,
			Label:       s.Label,
			Description: s.Description,
			Phase:       s.Phase,
			GatingRole:  s.GatingRole,
		})
	}
	return out
}

func stringOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func int64OrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
