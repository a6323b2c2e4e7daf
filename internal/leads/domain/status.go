// Package domain provides core business rules for the leads bounded context.
package domain

import "strings"

// Status is a pipeline column. The set is closed.
type Status string

const (
	StatusNew         Status = "new"
	StatusContacted   Status = "contacted"
	StatusQualified   Status = "qualified"
	StatusProposal    Status = "proposal"
	StatusNegotiating Status = "negotiating"
	StatusWon         Status = "won"
	StatusLost        Status = "lost"
)

// orderedStatuses is the canonical column order.
var orderedStatuses = []Status{
	StatusNew,
	StatusContacted,
	StatusQualified,
	StatusProposal,
	StatusNegotiating,
	StatusWon,
	StatusLost,
}

type statusInfo struct {
	label          string
	weight         int
	winProbability int
}

var statusTable = map[Status]statusInfo{
	StatusNew:         {label: "New", weight: 0, winProbability: 10},
	StatusContacted:   {label: "Contacted", weight: 10, winProbability: 20},
	StatusQualified:   {label: "Qualified", weight: 20, winProbability: 40},
	StatusProposal:    {label: "Proposal", weight: 25, winProbability: 60},
	StatusNegotiating: {label: "Negotiating", weight: 30, winProbability: 80},
	StatusWon:         {label: "Won", weight: 35, winProbability: 100},
	StatusLost:        {label: "Lost", weight: 0, winProbability: 0},
}

// Statuses returns the columns in display order.
func Statuses() []Status {
	out := make([]Status, len(orderedStatuses))
	copy(out, orderedStatuses)
	return out
}

// ParseStatus accepts a status name in any case.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := statusTable[s]
	return s, ok
}

// IsKnown reports whether s belongs to the closed status set.
func (s Status) IsKnown() bool {
	_, ok := statusTable[s]
	return ok
}

// OrDefault maps an empty or unknown status to New. Used for column grouping.
func (s Status) OrDefault() Status {
	if s.IsKnown() {
		return s
	}
	return StatusNew
}

// IsTerminal is true for Won and Lost.
func (s Status) IsTerminal() bool {
	return s == StatusWon || s == StatusLost
}

// IsQualified is true for every status at or past Qualified, except Lost.
func (s Status) IsQualified() bool {
	switch s {
	case StatusQualified, StatusProposal, StatusNegotiating, StatusWon:
		return true
	}
	return false
}

// Rank is the position in the canonical order, or -1.
func (s Status) Rank() int {
	for i, candidate := range orderedStatuses {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Weight is the status contribution to the lead score.
func (s Status) Weight() int {
	return statusTable[s.OrDefault()].weight
}

// DefaultWinProbability is the forecast probability used when none was set.
func (s Status) DefaultWinProbability() int {
	return statusTable[s.OrDefault()].winProbability
}

// Label is the human readable column title.
func (s Status) Label() string {
	return statusTable[s.OrDefault()].label
}

func (s Status) String() string {
	return string(s)
}
