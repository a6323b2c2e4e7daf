package domain

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrClosedAtMismatch means closedAt is set on an open lead or missing on a closed one.
	ErrClosedAtMismatch = errors.New("closed_at must be set exactly when status is won or lost")
	// ErrLossReasonOnOpenLead means a loss reason is present on a lead that is not lost.
	ErrLossReasonOnOpenLead = errors.New("loss reason is only allowed on lost leads")
)

// Lead is a prospective customer moving through the pipeline.
type Lead struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	DisplayName       string
	Phone             string
	RemoteJID         string
	Status            Status
	EstimatedValue    int64 // minor currency units
	Score             int
	WinProbability    *int
	LastInteractionAt *time.Time
	ClosedAt          *time.Time
	LossReason        *string
	LossReasonDetails *string
	Tags              []string
	Notes             string
	CustomFieldsCount int
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Clone returns a deep copy; snapshots handed to readers never share pointers.
func (l Lead) Clone() Lead {
	out := l
	out.WinProbability = clonePtr(l.WinProbability)
	out.LastInteractionAt = clonePtr(l.LastInteractionAt)
	out.ClosedAt = clonePtr(l.ClosedAt)
	out.LossReason = clonePtr(l.LossReason)
	out.LossReasonDetails = clonePtr(l.LossReasonDetails)
	if l.Tags != nil {
		out.Tags = slices.Clone(l.Tags)
	}
	return out
}

// IsOpen is true while the lead has not been won or lost.
func (l Lead) IsOpen() bool {
	return !l.Status.OrDefault().IsTerminal()
}

// EffectiveWinProbability returns the override or the status default.
func (l Lead) EffectiveWinProbability() int {
	if l.WinProbability != nil {
		return *l.WinProbability
	}
	return l.Status.DefaultWinProbability()
}

// CheckClosedFields validates the closed-field rules.
func (l Lead) CheckClosedFields() error {
	status := l.Status.OrDefault()
	if status.IsTerminal() != (l.ClosedAt != nil) {
		return ErrClosedAtMismatch
	}
	if status != StatusLost && (l.LossReason != nil || l.LossReasonDetails != nil) {
		return ErrLossReasonOnOpenLead
	}
	return nil
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
