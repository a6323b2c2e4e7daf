// Package analytics computes period metrics, trend series and revenue
// forecasts over a set of leads. Every function is pure given `now`.
package analytics

import (
	"fmt"
	"time"
)

// Preset names a reporting period relative to now.
type Preset string

const (
	PresetToday       Preset = "today"
	PresetThisWeek    Preset = "this_week"
	PresetThisMonth   Preset = "this_month"
	PresetLastMonth   Preset = "last_month"
	PresetLast7Days   Preset = "last_7_days"
	PresetLast30Days  Preset = "last_30_days"
	PresetLast90Days  Preset = "last_90_days"
	PresetThisQuarter Preset = "this_quarter"
	PresetThisYear    Preset = "this_year"
)

// DefaultPreset is used when no period is requested.
const DefaultPreset = PresetThisMonth

var presetLabels = map[Preset]string{
	PresetToday:       "Today",
	PresetThisWeek:    "This week",
	PresetThisMonth:   "This month",
	PresetLastMonth:   "Last month",
	PresetLast7Days:   "Last 7 days",
	PresetLast30Days:  "Last 30 days",
	PresetLast90Days:  "Last 90 days",
	PresetThisQuarter: "This quarter",
	PresetThisYear:    "This year",
}

// Presets returns every supported preset in display order.
func Presets() []Preset {
	return []Preset{
		PresetToday, PresetThisWeek, PresetThisMonth, PresetLastMonth,
		PresetLast7Days, PresetLast30Days, PresetLast90Days,
		PresetThisQuarter, PresetThisYear,
	}
}

// ParsePreset validates a preset name. An empty value yields DefaultPreset.
func ParsePreset(value string) (Preset, error) {
	if value == "" {
		return DefaultPreset, nil
	}
	p := Preset(value)
	if _, ok := presetLabels[p]; !ok {
		return "", fmt.Errorf("unknown period %q", value)
	}
	return p, nil
}

// Label returns the human readable name of the preset.
func (p Preset) Label() string {
	return presetLabels[p]
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Period pairs the current window with the window it is compared against.
type Period struct {
	Preset   Preset `json:"preset"`
	Label    string `json:"label"`
	Current  Window `json:"current"`
	Previous Window `json:"previous"`
}

// Resolve computes the current and previous windows of a preset. Windows are
// aligned to calendar days in now's location; the current window always ends
// at the close of today, except for last_month.
func Resolve(p Preset, now time.Time) (Period, error) {
	today := startOfDay(now)
	tomorrow := today.AddDate(0, 0, 1)

	var cur, prev Window
	switch p {
	case PresetToday:
		cur = Window{today, tomorrow}
		prev = Window{today.AddDate(0, 0, -1), today}
	case PresetThisWeek:
		start := today.AddDate(0, 0, -int(today.Weekday()))
		cur = Window{start, tomorrow}
		prev = Window{start.AddDate(0, 0, -7), start}
	case PresetThisMonth:
		start := startOfMonth(today)
		cur = Window{start, tomorrow}
		prev = Window{start.AddDate(0, -1, 0), start}
	case PresetLastMonth:
		end := startOfMonth(today)
		start := end.AddDate(0, -1, 0)
		cur = Window{start, end}
		prev = Window{start.AddDate(0, -1, 0), start}
	case PresetLast7Days:
		cur, prev = trailingDays(today, 7)
	case PresetLast30Days:
		cur, prev = trailingDays(today, 30)
	case PresetLast90Days:
		cur, prev = trailingDays(today, 90)
	case PresetThisQuarter:
		start := startOfQuarter(today)
		cur = Window{start, tomorrow}
		prev = Window{start.AddDate(0, -3, 0), start}
	case PresetThisYear:
		start := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
		cur = Window{start, tomorrow}
		prev = Window{start.AddDate(-1, 0, 0), start}
	default:
		return Period{}, fmt.Errorf("unknown period %q", p)
	}

	return Period{Preset: p, Label: p.Label(), Current: cur, Previous: prev}, nil
}

// trailingDays covers the last n calendar days including today and the n days before them.
func trailingDays(today time.Time, n int) (Window, Window) {
	start := today.AddDate(0, 0, -(n - 1))
	cur := Window{start, today.AddDate(0, 0, 1)}
	prev := Window{start.AddDate(0, 0, -n), start}
	return cur, prev
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func startOfQuarter(t time.Time) time.Time {
	month := time.Month((int(t.Month())-1)/3*3 + 1)
	return time.Date(t.Year(), month, 1, 0, 0, 0, 0, t.Location())
}
