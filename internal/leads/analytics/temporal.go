package analytics

import (
	"math"
	"time"

	"crm_pipeline_backend/internal/leads/domain"
)

// Granularity is the bucket size of a trend series.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
	GranularityWeek Granularity = "week"
)

const (
	maxDailyBuckets  = 31
	maxWeeklyBuckets = 12
)

// TrendPoint aggregates the leads created and won inside one bucket.
type TrendPoint struct {
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	Label             string    `json:"label"`
	NewLeads          int       `json:"newLeads"`
	Conversions       int       `json:"conversions"`
	Revenue           int64     `json:"revenue"`
	CumulativeRevenue int64     `json:"cumulativeRevenue"`
}

// Forecast projects revenue from the currently open leads.
type Forecast struct {
	OpenLeads             int     `json:"openLeads"`
	WeightedPipelineValue int64   `json:"weightedPipelineValue"`
	ExpectedCloses        float64 `json:"expectedCloses"`
	BestCaseValue         int64   `json:"bestCaseValue"`
	WorstCaseValue        int64   `json:"worstCaseValue"`
	ConfidenceScore       int     `json:"confidenceScore"`
}

// Report is the full temporal view for one period.
type Report struct {
	Period            Period       `json:"period"`
	Leads             Metric       `json:"leads"`
	Conversions       Metric       `json:"conversions"`
	Revenue           Metric       `json:"revenue"`
	WinRate           Metric       `json:"winRate"`
	AvgDealSize       Metric       `json:"avgDealSize"`
	PipelineValue     Metric       `json:"pipelineValue"`
	QualificationRate Metric       `json:"qualificationRate"`
	SalesVelocity     Metric       `json:"salesVelocity"`
	Granularity       Granularity  `json:"granularity"`
	Trend             []TrendPoint `json:"trend"`
	Forecast          Forecast     `json:"forecast"`
}

// Compute builds the temporal report for a preset. Leads are never mutated.
func Compute(leads []domain.Lead, preset Preset, now time.Time) (Report, error) {
	period, err := Resolve(preset, now)
	if err != nil {
		return Report{}, err
	}

	cur := cohortFor(leads, period.Current)
	prev := cohortFor(leads, period.Previous)

	granularity, trend := Trend(leads, preset, period.Current)

	return Report{
		Period:            period,
		Leads:             newMetric(float64(cur.created), float64(prev.created)),
		Conversions:       newMetric(float64(cur.conversions), float64(prev.conversions)),
		Revenue:           newMetric(float64(cur.revenue), float64(prev.revenue)),
		WinRate:           newMetric(float64(cur.winRate()), float64(prev.winRate())),
		AvgDealSize:       newMetric(float64(cur.avgDealSize()), float64(prev.avgDealSize())),
		PipelineValue:     newMetric(float64(cur.pipelineValue), float64(prev.pipelineValue)),
		QualificationRate: newMetric(float64(cur.qualificationRate()), float64(prev.qualificationRate())),
		SalesVelocity:     newMetric(float64(cur.salesVelocity()), float64(prev.salesVelocity())),
		Granularity:       granularity,
		Trend:             trend,
		Forecast:          ForecastOpen(leads),
	}, nil
}

// cohort holds the raw counts of one window. Created-based figures use
// createdAt; closed-based figures use closedAt.
type cohort struct {
	created       int
	qualified     int
	pipelineValue int64
	closed        int
	conversions   int
	revenue       int64
	closedDays    int64
}

func cohortFor(leads []domain.Lead, w Window) cohort {
	var c cohort
	for i := range leads {
		l := &leads[i]
		status := l.Status.OrDefault()

		if w.Contains(l.CreatedAt) {
			c.created++
			if status.IsQualified() {
				c.qualified++
			}
			if !status.IsTerminal() {
				c.pipelineValue += l.EstimatedValue
			}
		}

		if status.IsTerminal() && l.ClosedAt != nil && w.Contains(*l.ClosedAt) {
			c.closed++
			c.closedDays += daysToClose(l.CreatedAt, *l.ClosedAt)
			if status == domain.StatusWon {
				c.conversions++
				c.revenue += l.EstimatedValue
			}
		}
	}
	return c
}

func (c cohort) winRate() int64 {
	return percent(int64(c.conversions), int64(c.closed))
}

func (c cohort) avgDealSize() int64 {
	if c.conversions == 0 {
		return 0
	}
	return roundDiv(c.revenue, int64(c.conversions))
}

func (c cohort) qualificationRate() int64 {
	return percent(int64(c.qualified), int64(c.created))
}

func (c cohort) salesVelocity() int64 {
	if c.closed == 0 {
		return 0
	}
	return roundDiv(c.closedDays, int64(c.closed))
}

// Trend splits a window into buckets: hourly for a single day, weekly for
// quarter and year scale presets, daily otherwise.
func Trend(leads []domain.Lead, preset Preset, w Window) (Granularity, []TrendPoint) {
	granularity := granularityFor(preset, w)
	buckets := bucketWindows(granularity, w)

	points := make([]TrendPoint, len(buckets))
	for i, b := range buckets {
		points[i] = TrendPoint{Start: b.Start, End: b.End, Label: bucketLabel(granularity, b.Start)}
	}

	for i := range leads {
		l := &leads[i]
		if idx := bucketIndex(buckets, l.CreatedAt); idx >= 0 {
			points[idx].NewLeads++
		}
		if l.Status.OrDefault() != domain.StatusWon || l.ClosedAt == nil {
			continue
		}
		if idx := bucketIndex(buckets, *l.ClosedAt); idx >= 0 {
			points[idx].Conversions++
			points[idx].Revenue += l.EstimatedValue
		}
	}

	var running int64
	for i := range points {
		running += points[i].Revenue
		points[i].CumulativeRevenue = running
	}
	return granularity, points
}

func granularityFor(preset Preset, w Window) Granularity {
	switch {
	case preset == PresetToday || w.Duration() <= 24*time.Hour:
		return GranularityHour
	case preset == PresetLast90Days || preset == PresetThisQuarter || preset == PresetThisYear:
		return GranularityWeek
	default:
		return GranularityDay
	}
}

// bucketWindows tiles w without gaps. Weekly buckets widen past seven days
// when the window would otherwise need more than maxWeeklyBuckets.
func bucketWindows(g Granularity, w Window) []Window {
	var out []Window
	switch g {
	case GranularityHour:
		for start := w.Start; start.Before(w.End) && len(out) < 24; start = start.Add(time.Hour) {
			out = append(out, Window{start, minTime(start.Add(time.Hour), w.End)})
		}
	case GranularityWeek:
		days := int(math.Ceil(w.Duration().Hours() / 24))
		step := 7
		if (days+step-1)/step > maxWeeklyBuckets {
			step = (days + maxWeeklyBuckets - 1) / maxWeeklyBuckets
		}
		for start := w.Start; start.Before(w.End) && len(out) < maxWeeklyBuckets; start = start.AddDate(0, 0, step) {
			out = append(out, Window{start, minTime(start.AddDate(0, 0, step), w.End)})
		}
	default:
		for start := w.Start; start.Before(w.End) && len(out) < maxDailyBuckets; start = start.AddDate(0, 0, 1) {
			out = append(out, Window{start, minTime(start.AddDate(0, 0, 1), w.End)})
		}
	}
	return out
}

func bucketIndex(buckets []Window, t time.Time) int {
	for i, b := range buckets {
		if b.Contains(t) {
			return i
		}
	}
	return -1
}

func bucketLabel(g Granularity, start time.Time) string {
	if g == GranularityHour {
		return start.Format("15:04")
	}
	return start.Format("Jan 02")
}

// ForecastOpen projects revenue from every lead that is not won or lost,
// using the override probability when set and the status default otherwise.
func ForecastOpen(leads []domain.Lead) Forecast {
	var (
		f        Forecast
		weighted int64
		probSum  int64
	)
	for i := range leads {
		l := &leads[i]
		if !l.IsOpen() {
			continue
		}
		p := int64(l.EffectiveWinProbability())
		f.OpenLeads++
		weighted += l.EstimatedValue * p
		probSum += p
		f.BestCaseValue += l.EstimatedValue
		if p >= 60 {
			f.WorstCaseValue += l.EstimatedValue
		}
	}
	if f.OpenLeads == 0 {
		return f
	}

	f.WeightedPipelineValue = roundDiv(weighted, 100)
	f.ExpectedCloses = math.Round(float64(probSum)/100*10) / 10
	avg := float64(probSum) / float64(f.OpenLeads)
	f.ConfidenceScore = min(100, int(math.Round(avg*1.2)))
	return f
}

// daysToClose counts whole elapsed days, never negative.
func daysToClose(created, closed time.Time) int64 {
	d := int64(closed.Sub(created) / (24 * time.Hour))
	return max(0, d)
}

func percent(part, whole int64) int64 {
	if whole == 0 {
		return 0
	}
	return roundDiv(part*100, whole)
}

func roundDiv(a, b int64) int64 {
	return int64(math.Round(float64(a) / float64(b)))
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
