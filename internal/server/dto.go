package server

import (
	"sort"

	"actionboard/internal/domain"
	"actionboard/internal/engine"
)

type personStatusDTO struct {
	Status                domain.Status `json:"status"`
	StatusLabel           string        `json:"status_label"`
	Comment               string        `json:"comment"`
	Justification         string        `json:"justification"`
	JustificationApproved bool          `json:"justification_approved"`
}

type historyDTO struct {
	Timestamp string `json:"timestamp"`
	Action    string `json:"action"`
	User      string `json:"user"`
	Comment   string `json:"comment,omitempty"`
}

// activityDTO is the wire form of an activity. Overall is derived on
// every read, never stored.
type activityDTO struct {
	ID                int                        `json:"id"`
	Title             string                     `json:"title"`
	Description       string                     `json:"description"`
	Deadline          string                     `json:"deadline"`
	Overall           domain.Status              `json:"overall_status"`
	OverallLabel      string                     `json:"overall_status_label"`
	Responsible       []string                   `json:"responsible"`
	ResponsibleStatus map[string]personStatusDTO `json:"responsible_status"`
	CreatedBy         string                     `json:"created_by"`
	CreatedAt         string                     `json:"created_at"`
	History           []historyDTO               `json:"history"`
}

func toActivityDTO(a domain.Activity) activityDTO {
	overall := a.Overall()
	dto := activityDTO{
		ID:                a.ID,
		Title:             a.Title,
		Description:       a.Description,
		Deadline:          a.Deadline,
		Overall:           overall,
		OverallLabel:      overall.Label(),
		Responsible:       a.Responsible,
		ResponsibleStatus: make(map[string]personStatusDTO, len(a.ResponsibleStatus)),
		CreatedBy:         a.CreatedBy,
		CreatedAt:         a.CreatedAt,
		History:           make([]historyDTO, 0, len(a.History)),
	}
	for p, ps := range a.ResponsibleStatus {
		dto.ResponsibleStatus[p] = personStatusDTO{
			Status:                ps.Status,
			StatusLabel:           ps.Status.Label(),
			Comment:               ps.Comment,
			Justification:         ps.Justification,
			JustificationApproved: ps.JustificationApproved,
		}
	}
	for _, h := range a.History {
		dto.History = append(dto.History, historyDTO(h))
	}
	return dto
}

func toActivityDTOs(activities []domain.Activity) []activityDTO {
	out := make([]activityDTO, 0, len(activities))
	for _, a := range activities {
		out = append(out, toActivityDTO(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type pendingJustificationDTO struct {
	ActivityID    int    `json:"activity_id"`
	Title         string `json:"title"`
	Person        string `json:"person"`
	Justification string `json:"justification"`
	Comment       string `json:"comment,omitempty"`
}

func toPendingDTOs(items []engine.PendingJustification) []pendingJustificationDTO {
	out := make([]pendingJustificationDTO, 0, len(items))
	for _, it := range items {
		out = append(out, pendingJustificationDTO(it))
	}
	return out
}

type managerDTO struct {
	Name       string `json:"name"`
	Director   bool   `json:"director"`
	Activities int    `json:"activities"`
}

type statusDTO struct {
	Value domain.Status `json:"value"`
	Label string        `json:"label"`
}
