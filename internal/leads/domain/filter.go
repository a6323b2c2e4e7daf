package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Filter narrows a lead list. The zero value matches every lead.
type Filter struct {
	Statuses    []Status
	MinScore    *int
	MaxScore    *int
	MinValue    *int64
	MaxValue    *int64
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Tags        []string // lead must carry every tag
}

// Key is a canonical cache key. Equal filters produce equal keys regardless of slice order.
func (f Filter) Key() string {
	var b strings.Builder
	statuses := make([]string, 0, len(f.Statuses))
	for _, s := range f.Statuses {
		statuses = append(statuses, string(s))
	}
	slices.Sort(statuses)
	statuses = slices.Compact(statuses)
	tags := slices.Clone(f.Tags)
	slices.Sort(tags)
	tags = slices.Compact(tags)

	fmt.Fprintf(&b, "s=%s", strings.Join(statuses, ","))
	fmt.Fprintf(&b, "|score=%s..%s", intPtrKey(f.MinScore), intPtrKey(f.MaxScore))
	fmt.Fprintf(&b, "|value=%s..%s", int64PtrKey(f.MinValue), int64PtrKey(f.MaxValue))
	fmt.Fprintf(&b, "|created=%s..%s", timePtrKey(f.CreatedFrom), timePtrKey(f.CreatedTo))
	fmt.Fprintf(&b, "|tags=%s", strings.Join(tags, ","))
	return b.String()
}

// Matches evaluates the filter in memory. Used to keep cached snapshots consistent after local writes.
func (f Filter) Matches(l Lead) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, l.Status.OrDefault()) {
		return false
	}
	if f.MinScore != nil && l.Score < *f.MinScore {
		return false
	}
	if f.MaxScore != nil && l.Score > *f.MaxScore {
		return false
	}
	if f.MinValue != nil && l.EstimatedValue < *f.MinValue {
		return false
	}
	if f.MaxValue != nil && l.EstimatedValue > *f.MaxValue {
		return false
	}
	if f.CreatedFrom != nil && l.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && l.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	for _, tag := range f.Tags {
		if !slices.Contains(l.Tags, tag) {
			return false
		}
	}
	return true
}

func intPtrKey(p *int) string {
	if p == nil {
		return ""
	}
	return fmt.Sprint(*p)
}

func int64PtrKey(p *int64) string {
	if p == nil {
		return ""
	}
	return fmt.Sprint(*p)
}

func timePtrKey(p *time.Time) string {
	if p == nil {
		return ""
	}
	return p.UTC().Format(time.RFC3339Nano)
}
