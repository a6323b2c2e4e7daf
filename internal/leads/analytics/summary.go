package analytics

import "crm_pipeline_backend/internal/leads/domain"

// Summary describes the pipeline as it stands right now.
type Summary struct {
	TotalLeads        int                   `json:"totalLeads"`
	CountsByStatus    map[domain.Status]int `json:"countsByStatus"`
	TotalValue        int64                 `json:"totalValue"`
	PipelineValue     int64                 `json:"pipelineValue"`
	WinRate           int64                 `json:"winRate"`
	AvgDealSize       int64                 `json:"avgDealSize"`
	SalesVelocity     int64                 `json:"salesVelocity"`
	QualificationRate int64                 `json:"qualificationRate"`
}

// Summarize aggregates a set of leads. Leads without a status count as New.
func Summarize(leads []domain.Lead) Summary {
	s := Summary{
		TotalLeads:     len(leads),
		CountsByStatus: make(map[domain.Status]int, len(domain.Statuses())),
	}
	for _, status := range domain.Statuses() {
		s.CountsByStatus[status] = 0
	}

	var (
		qualified  int64
		wonValued  int64
		wonRevenue int64
		closed     int64
		closedDays int64
	)
	for i := range leads {
		l := &leads[i]
		status := l.Status.OrDefault()
		s.CountsByStatus[status]++
		s.TotalValue += l.EstimatedValue

		if !status.IsTerminal() {
			s.PipelineValue += l.EstimatedValue
		}
		if status.IsQualified() {
			qualified++
		}
		if status == domain.StatusWon && l.EstimatedValue > 0 {
			wonValued++
			wonRevenue += l.EstimatedValue
		}
		if status.IsTerminal() && l.ClosedAt != nil {
			closed++
			closedDays += daysToClose(l.CreatedAt, *l.ClosedAt)
		}
	}

	won := int64(s.CountsByStatus[domain.StatusWon])
	lost := int64(s.CountsByStatus[domain.StatusLost])
	s.WinRate = percent(won, won+lost)
	s.QualificationRate = percent(qualified, int64(len(leads)))
	if wonValued > 0 {
		s.AvgDealSize = roundDiv(wonRevenue, wonValued)
	}
	if closed > 0 {
		s.SalesVelocity = roundDiv(closedDays, closed)
	}
	return s
}

// Column is one status lane with its leads in display order.
type Column struct {
	Status domain.Status `json:"status"`
	Label  string        `json:"label"`
	Leads  []domain.Lead `json:"leads"`
	Count  int           `json:"count"`
	Value  int64         `json:"value"`
}

// GroupColumns buckets leads by status in canonical order, one column per
// status even when empty. Leads keep their relative order.
func GroupColumns(leads []domain.Lead) []Column {
	statuses := domain.Statuses()
	index := make(map[domain.Status]int, len(statuses))
	columns := make([]Column, len(statuses))
	for i, status := range statuses {
		index[status] = i
		columns[i] = Column{Status: status, Label: status.Label(), Leads: []domain.Lead{}}
	}
	for _, l := range leads {
		col := &columns[index[l.Status.OrDefault()]]
		col.Leads = append(col.Leads, l)
		col.Count++
		col.Value += l.EstimatedValue
	}
	return columns
}
