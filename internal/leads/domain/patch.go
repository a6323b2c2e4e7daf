package domain

import (
	"slices"
	"time"
)

// Optional distinguishes "leave unchanged" from "set to nil".
type Optional[T any] struct {
	Value *T
	Set   bool
}

// SetTo returns an Optional that assigns v.
func SetTo[T any](v T) Optional[T] {
	return Optional[T]{Value: &v, Set: true}
}

// Clear returns an Optional that assigns nil.
func Clear[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o Optional[T]) apply(dst **T) {
	if !o.Set {
		return
	}
	*dst = clonePtr(o.Value)
}

// Patch is a partial lead update. Nil pointers and unset Optionals are left untouched.
type Patch struct {
	Status            *Status
	DisplayName       *string
	EstimatedValue    *int64
	Score             *int
	Notes             *string
	Tags              *[]string
	WinProbability    Optional[int]
	LastInteractionAt Optional[time.Time]
	ClosedAt          Optional[time.Time]
	LossReason        Optional[string]
	LossReasonDetails Optional[string]
}

// IsEmpty is true when the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Status == nil && p.DisplayName == nil && p.EstimatedValue == nil &&
		p.Score == nil && p.Notes == nil && p.Tags == nil &&
		!p.WinProbability.Set && !p.LastInteractionAt.Set && !p.ClosedAt.Set &&
		!p.LossReason.Set && !p.LossReasonDetails.Set
}

// TouchesScore reports whether any score input changes.
func (p Patch) TouchesScore() bool {
	return p.Status != nil || p.DisplayName != nil || p.EstimatedValue != nil || p.LastInteractionAt.Set
}

// Apply returns a copy of l with the patch applied. l is not modified.
func (p Patch) Apply(l Lead) Lead {
	out := l.Clone()
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.DisplayName != nil {
		out.DisplayName = *p.DisplayName
	}
	if p.EstimatedValue != nil {
		out.EstimatedValue = *p.EstimatedValue
	}
	if p.Score != nil {
		out.Score = *p.Score
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.Tags != nil {
		out.Tags = slices.Clone(*p.Tags)
	}
	p.WinProbability.apply(&out.WinProbability)
	p.LastInteractionAt.apply(&out.LastInteractionAt)
	p.ClosedAt.apply(&out.ClosedAt)
	p.LossReason.apply(&out.LossReason)
	p.LossReasonDetails.apply(&out.LossReasonDetails)
	return out
}

// Fields lists the column names the patch writes, in a stable order.
func (p Patch) Fields() []string {
	var fields []string
	add := func(ok bool, name string) {
		if ok {
			fields = append(fields, name)
		}
	}
	add(p.Status != nil, "status")
	add(p.DisplayName != nil, "display_name")
	add(p.EstimatedValue != nil, "estimated_value")
	add(p.Score != nil, "score")
	add(p.Notes != nil, "notes")
	add(p.Tags != nil, "tags")
	add(p.WinProbability.Set, "win_probability")
	add(p.LastInteractionAt.Set, "last_interaction_at")
	add(p.ClosedAt.Set, "closed_at")
	add(p.LossReason.Set, "loss_reason")
	add(p.LossReasonDetails.Set, "loss_reason_details")
	return fields
}
