package transport

import (
	"time"

	"crm_pipeline_backend/internal/leads/analytics"
	"crm_pipeline_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// Requests

type MoveLeadRequest struct {
	Status            string  `json:"status" validate:"required,lead_status"`
	LossReason        *string `json:"lossReason,omitempty" validate:"omitempty,max=200"`
	LossReasonDetails *string `json:"lossReasonDetails,omitempty" validate:"omitempty,max=2000"`
}

type UpdateLeadRequest struct {
	DisplayName       *string     `json:"displayName,omitempty" validate:"omitempty,min=1,max=200"`
	EstimatedValue    *int64      `json:"estimatedValue,omitempty" validate:"omitempty,min=0"`
	Notes             *string     `json:"notes,omitempty" validate:"omitempty,max=10000"`
	Tags              *[]string   `json:"tags,omitempty" validate:"omitempty,max=50,dive,min=1,max=50"`
	WinProbability    OptionalInt `json:"winProbability"`
	RecordInteraction *bool       `json:"recordInteraction,omitempty"`
}

type ListLeadsRequest struct {
	Status      []string   `form:"status" validate:"omitempty,dive,lead_status"`
	MinScore    *int       `form:"minScore" validate:"omitempty,min=0,max=100"`
	MaxScore    *int       `form:"maxScore" validate:"omitempty,min=0,max=100"`
	MinValue    *int64     `form:"minValue" validate:"omitempty,min=0"`
	MaxValue    *int64     `form:"maxValue" validate:"omitempty,min=0"`
	CreatedFrom *time.Time `form:"createdFrom" time_format:"2006-01-02"`
	CreatedTo   *time.Time `form:"createdTo" time_format:"2006-01-02"`
	Tag         []string   `form:"tag" validate:"omitempty,dive,min=1"`
}

type MetricsRequest struct {
	Period string `form:"period" validate:"omitempty,oneof=today this_week this_month last_month last_7_days last_30_days last_90_days this_quarter this_year"`
}

// Filter converts the query into a store filter. CreatedTo is inclusive of the whole day.
func (r ListLeadsRequest) Filter() domain.Filter {
	f := domain.Filter{
		MinScore:    r.MinScore,
		MaxScore:    r.MaxScore,
		MinValue:    r.MinValue,
		MaxValue:    r.MaxValue,
		CreatedFrom: r.CreatedFrom,
		Tags:        r.Tag,
	}
	for _, raw := range r.Status {
		if s, ok := domain.ParseStatus(raw); ok {
			f.Statuses = append(f.Statuses, s)
		}
	}
	if r.CreatedTo != nil {
		end := r.CreatedTo.AddDate(0, 0, 1).Add(-time.Nanosecond)
		f.CreatedTo = &end
	}
	return f
}

// Responses

type LeadResponse struct {
	ID                uuid.UUID  `json:"id"`
	DisplayName       string     `json:"displayName"`
	Phone             string     `json:"phone"`
	RemoteJID         string     `json:"remoteJid,omitempty"`
	Status            string     `json:"status"`
	StatusLabel       string     `json:"statusLabel"`
	EstimatedValue    int64      `json:"estimatedValue"`
	Score             int        `json:"score"`
	WinProbability    int        `json:"winProbability"`
	ProbabilityIsSet  bool       `json:"winProbabilityOverridden"`
	LastInteractionAt *time.Time `json:"lastInteractionAt,omitempty"`
	ClosedAt          *time.Time `json:"closedAt,omitempty"`
	LossReason        *string    `json:"lossReason,omitempty"`
	LossReasonDetails *string    `json:"lossReasonDetails,omitempty"`
	Tags              []string   `json:"tags"`
	Notes             string     `json:"notes,omitempty"`
	CustomFieldsCount int        `json:"customFieldsCount"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

type ColumnResponse struct {
	Status string         `json:"status"`
	Label  string         `json:"label"`
	Count  int            `json:"count"`
	Value  int64          `json:"value"`
	Leads  []LeadResponse `json:"leads"`
}

type ColumnsResponse struct {
	Columns []ColumnResponse  `json:"columns"`
	Summary analytics.Summary `json:"summary"`
}

type LeadListResponse struct {
	Items []LeadResponse `json:"items"`
	Total int            `json:"total"`
}

func ToLeadResponse(l domain.Lead) LeadResponse {
	status := l.Status.OrDefault()
	tags := l.Tags
	if tags == nil {
		tags = []string{}
	}
	return LeadResponse{
		ID:                l.ID,
		DisplayName:       l.DisplayName,
		Phone:             l.Phone,
		RemoteJID:         l.RemoteJID,
		Status:            string(status),
		StatusLabel:       status.Label(),
		EstimatedValue:    l.EstimatedValue,
		Score:             l.Score,
		WinProbability:    l.EffectiveWinProbability(),
		ProbabilityIsSet:  l.WinProbability != nil,
		LastInteractionAt: l.LastInteractionAt,
		ClosedAt:          l.ClosedAt,
		LossReason:        l.LossReason,
		LossReasonDetails: l.LossReasonDetails,
		Tags:              tags,
		Notes:             l.Notes,
		CustomFieldsCount: l.CustomFieldsCount,
		Version:           l.Version,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
	}
}

func ToLeadResponses(leads []domain.Lead) []LeadResponse {
	out := make([]LeadResponse, len(leads))
	for i, l := range leads {
		out[i] = ToLeadResponse(l)
	}
	return out
}

func ToColumnsResponse(columns []analytics.Column, summary analytics.Summary) ColumnsResponse {
	out := ColumnsResponse{Columns: make([]ColumnResponse, len(columns)), Summary: summary}
	for i, c := range columns {
		out.Columns[i] = ColumnResponse{
			Status: string(c.Status),
			Label:  c.Label,
			Count:  c.Count,
			Value:  c.Value,
			Leads:  ToLeadResponses(c.Leads),
		}
	}
	return out
}
