package analytics

import (
	"testing"
	"time"

	"crm_pipeline_backend/internal/leads/domain"
)

// Tuesday.
var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func day(month time.Month, d int) time.Time {
	return time.Date(2026, month, d, 0, 0, 0, 0, time.UTC)
}

func at(t time.Time) *time.Time { return &t }

func intPtr(v int) *int { return &v }

func TestCalculateChange(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		previous float64
		want     Change
	}{
		{name: "nothing either side", current: 0, previous: 0, want: Change{0, DirectionNeutral}},
		{name: "from zero", current: 5, previous: 0, want: Change{100, DirectionUp}},
		{name: "to zero", current: 0, previous: 5, want: Change{100, DirectionDown}},
		{name: "growth", current: 150, previous: 100, want: Change{50, DirectionUp}},
		{name: "flat", current: 100, previous: 100, want: Change{0, DirectionNeutral}},
		{name: "rounded decline", current: 1, previous: 3, want: Change{67, DirectionDown}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateChange(tt.current, tt.previous); got != tt.want {
				t.Errorf("CalculateChange(%v, %v) = %+v, want %+v", tt.current, tt.previous, got, tt.want)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		preset Preset
		cur    Window
		prev   Window
	}{
		{PresetToday, Window{day(3, 10), day(3, 11)}, Window{day(3, 9), day(3, 10)}},
		{PresetThisWeek, Window{day(3, 8), day(3, 11)}, Window{day(3, 1), day(3, 8)}},
		{PresetThisMonth, Window{day(3, 1), day(3, 11)}, Window{day(2, 1), day(3, 1)}},
		{PresetLastMonth, Window{day(2, 1), day(3, 1)}, Window{day(1, 1), day(2, 1)}},
		{PresetLast7Days, Window{day(3, 4), day(3, 11)}, Window{day(2, 25), day(3, 4)}},
		{PresetLast30Days, Window{day(2, 9), day(3, 11)}, Window{day(1, 10), day(2, 9)}},
		{PresetThisQuarter, Window{day(1, 1), day(3, 11)}, Window{time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), day(1, 1)}},
		{PresetThisYear, Window{day(1, 1), day(3, 11)}, Window{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), day(1, 1)}},
	}

	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			p, err := Resolve(tt.preset, now)
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if !p.Current.Start.Equal(tt.cur.Start) || !p.Current.End.Equal(tt.cur.End) {
				t.Errorf("current = %v..%v, want %v..%v", p.Current.Start, p.Current.End, tt.cur.Start, tt.cur.End)
			}
			if !p.Previous.Start.Equal(tt.prev.Start) || !p.Previous.End.Equal(tt.prev.End) {
				t.Errorf("previous = %v..%v, want %v..%v", p.Previous.Start, p.Previous.End, tt.prev.Start, tt.prev.End)
			}
		})
	}
}

func TestParsePreset(t *testing.T) {
	if p, err := ParsePreset(""); err != nil || p != DefaultPreset {
		t.Errorf("ParsePreset(\"\") = %q, %v", p, err)
	}
	if _, err := ParsePreset("fortnight"); err == nil {
		t.Error("expected error for unknown preset")
	}
	for _, p := range Presets() {
		if _, err := Resolve(p, now); err != nil {
			t.Errorf("Resolve(%q) returned error: %v", p, err)
		}
	}
}

func TestTrendBuckets(t *testing.T) {
	tests := []struct {
		preset      Preset
		granularity Granularity
		buckets     int
	}{
		{PresetToday, GranularityHour, 24},
		{PresetThisMonth, GranularityDay, 10},
		{PresetLast30Days, GranularityDay, 30},
		{PresetThisYear, GranularityWeek, 10},
		{PresetLast90Days, GranularityWeek, 12},
	}

	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			p, err := Resolve(tt.preset, now)
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			g, points := Trend(nil, tt.preset, p.Current)
			if g != tt.granularity {
				t.Errorf("granularity = %s, want %s", g, tt.granularity)
			}
			if len(points) != tt.buckets {
				t.Fatalf("buckets = %d, want %d", len(points), tt.buckets)
			}
			if !points[0].Start.Equal(p.Current.Start) {
				t.Errorf("first bucket starts at %v, want %v", points[0].Start, p.Current.Start)
			}
			if last := points[len(points)-1]; !last.End.Equal(p.Current.End) {
				t.Errorf("last bucket ends at %v, want %v", last.End, p.Current.End)
			}
		})
	}
}

func TestForecastOpen(t *testing.T) {
	leads := []domain.Lead{
		{Status: domain.StatusProposal, EstimatedValue: 10000},
		{Status: domain.StatusContacted, EstimatedValue: 5000, WinProbability: intPtr(20)},
		{Status: domain.StatusWon, EstimatedValue: 99999, ClosedAt: at(day(3, 1))},
	}

	got := ForecastOpen(leads)
	want := Forecast{
		OpenLeads:             2,
		WeightedPipelineValue: 7000,
		ExpectedCloses:        0.8,
		BestCaseValue:         15000,
		WorstCaseValue:        10000,
		ConfidenceScore:       48,
	}
	if got != want {
		t.Errorf("ForecastOpen = %+v, want %+v", got, want)
	}

	if empty := ForecastOpen(nil); empty != (Forecast{}) {
		t.Errorf("ForecastOpen(nil) = %+v, want zero", empty)
	}
}

func TestForecastConfidenceIsCapped(t *testing.T) {
	leads := []domain.Lead{
		{Status: domain.StatusNegotiating, EstimatedValue: 100, WinProbability: intPtr(95)},
	}
	if got := ForecastOpen(leads).ConfidenceScore; got != 100 {
		t.Errorf("confidence = %d, want 100", got)
	}
}

func TestCompute(t *testing.T) {
	leads := []domain.Lead{
		{Status: domain.StatusWon, EstimatedValue: 20000, CreatedAt: day(3, 2), ClosedAt: at(day(3, 5))},
		{Status: domain.StatusLost, EstimatedValue: 7000, CreatedAt: day(3, 3), ClosedAt: at(day(3, 4))},
		{Status: domain.StatusQualified, EstimatedValue: 5000, CreatedAt: day(3, 9)},
		{Status: domain.StatusWon, EstimatedValue: 10000, CreatedAt: day(2, 10), ClosedAt: at(day(2, 20))},
	}

	r, err := Compute(leads, PresetThisMonth, now)
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}

	checks := []struct {
		name     string
		metric   Metric
		current  float64
		previous float64
		change   Change
	}{
		{"leads", r.Leads, 3, 1, Change{200, DirectionUp}},
		{"conversions", r.Conversions, 1, 1, Change{0, DirectionNeutral}},
		{"revenue", r.Revenue, 20000, 10000, Change{100, DirectionUp}},
		{"win rate", r.WinRate, 50, 100, Change{50, DirectionDown}},
		{"avg deal", r.AvgDealSize, 20000, 10000, Change{100, DirectionUp}},
		{"pipeline value", r.PipelineValue, 5000, 0, Change{100, DirectionUp}},
		{"qualification rate", r.QualificationRate, 67, 100, Change{33, DirectionDown}},
		{"sales velocity", r.SalesVelocity, 2, 10, Change{80, DirectionDown}},
	}
	for _, c := range checks {
		if c.metric.Current != c.current || c.metric.Previous != c.previous || c.metric.Change != c.change {
			t.Errorf("%s = %+v, want current %v previous %v change %+v", c.name, c.metric, c.current, c.previous, c.change)
		}
	}

	if r.Granularity != GranularityDay || len(r.Trend) != 10 {
		t.Fatalf("trend = %s x %d, want day x 10", r.Granularity, len(r.Trend))
	}
	if r.Trend[1].NewLeads != 1 || r.Trend[8].NewLeads != 1 {
		t.Errorf("new leads per bucket = %d/%d, want 1/1", r.Trend[1].NewLeads, r.Trend[8].NewLeads)
	}
	if r.Trend[4].Conversions != 1 || r.Trend[4].Revenue != 20000 {
		t.Errorf("bucket 4 = %+v, want one conversion worth 20000", r.Trend[4])
	}
	if r.Trend[9].CumulativeRevenue != 20000 {
		t.Errorf("cumulative revenue = %d, want 20000", r.Trend[9].CumulativeRevenue)
	}
	if r.Forecast.OpenLeads != 1 {
		t.Errorf("forecast open leads = %d, want 1", r.Forecast.OpenLeads)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	leads := []domain.Lead{
		{Status: domain.StatusNegotiating, EstimatedValue: 4200, CreatedAt: day(3, 6)},
		{Status: domain.StatusWon, EstimatedValue: 1300, CreatedAt: day(3, 1), ClosedAt: at(day(3, 7))},
	}
	a, _ := Compute(leads, PresetLast7Days, now)
	b, _ := Compute(leads, PresetLast7Days, now)
	if a.Forecast != b.Forecast || a.Revenue != b.Revenue || len(a.Trend) != len(b.Trend) {
		t.Error("Compute is not deterministic for identical input")
	}
}

func TestSummarize(t *testing.T) {
	leads := []domain.Lead{
		{Status: ""},
		{Status: domain.StatusContacted},
		{Status: domain.StatusQualified, EstimatedValue: 1000},
		{Status: domain.StatusWon, EstimatedValue: 3000, CreatedAt: day(3, 1), ClosedAt: at(day(3, 5))},
		{Status: domain.StatusWon, CreatedAt: day(3, 1), ClosedAt: at(day(3, 3))},
		{Status: domain.StatusLost, CreatedAt: day(3, 1), ClosedAt: at(day(3, 1).Add(12 * time.Hour))},
	}

	s := Summarize(leads)
	if s.TotalLeads != 6 || s.CountsByStatus[domain.StatusNew] != 1 || s.CountsByStatus[domain.StatusWon] != 2 {
		t.Errorf("counts = %d %v", s.TotalLeads, s.CountsByStatus)
	}
	if s.WinRate != 67 {
		t.Errorf("win rate = %d, want 67", s.WinRate)
	}
	if s.AvgDealSize != 3000 {
		t.Errorf("avg deal = %d, want 3000", s.AvgDealSize)
	}
	if s.QualificationRate != 50 {
		t.Errorf("qualification rate = %d, want 50", s.QualificationRate)
	}
	if s.SalesVelocity != 2 {
		t.Errorf("velocity = %d, want 2", s.SalesVelocity)
	}
	if s.TotalValue != 4000 || s.PipelineValue != 1000 {
		t.Errorf("values = %d/%d, want 4000/1000", s.TotalValue, s.PipelineValue)
	}
}

func TestGroupColumns(t *testing.T) {
	leads := []domain.Lead{
		{DisplayName: "a", Status: domain.StatusWon, EstimatedValue: 10},
		{DisplayName: "b"},
		{DisplayName: "c", Status: domain.StatusWon, EstimatedValue: 5},
	}

	columns := GroupColumns(leads)
	if len(columns) != len(domain.Statuses()) {
		t.Fatalf("columns = %d, want %d", len(columns), len(domain.Statuses()))
	}
	if columns[0].Status != domain.StatusNew || columns[0].Count != 1 {
		t.Errorf("first column = %+v", columns[0])
	}
	won := columns[domain.StatusWon.Rank()]
	if won.Count != 2 || won.Value != 15 || won.Leads[0].DisplayName != "a" || won.Leads[1].DisplayName != "c" {
		t.Errorf("won column = %+v", won)
	}
	if columns[domain.StatusProposal.Rank()].Leads == nil {
		t.Error("empty columns should carry an empty slice")
	}
}
