package analytics

import "math"

// Direction is the sign of a period-over-period change.
type Direction string

const (
	DirectionUp      Direction = "up"
	DirectionDown    Direction = "down"
	DirectionNeutral Direction = "neutral"
)

// Change is an unsigned percentage plus the direction it moved in.
type Change struct {
	Percent   int       `json:"percent"`
	Direction Direction `json:"direction"`
}

// CalculateChange compares a current value with its previous counterpart.
// A zero baseline reports 100% up when anything happened, otherwise neutral.
func CalculateChange(current, previous float64) Change {
	if previous == 0 {
		if current > 0 {
			return Change{Percent: 100, Direction: DirectionUp}
		}
		return Change{Percent: 0, Direction: DirectionNeutral}
	}

	diff := current - previous
	out := Change{Percent: int(math.Round(math.Abs(diff) / math.Abs(previous) * 100))}
	switch {
	case diff > 0:
		out.Direction = DirectionUp
	case diff < 0:
		out.Direction = DirectionDown
	default:
		out.Direction = DirectionNeutral
	}
	return out
}

// Metric is one headline figure with its comparison against the previous window.
type Metric struct {
	Current  float64 `json:"current"`
	Previous float64 `json:"previous"`
	Change   Change  `json:"change"`
}

func newMetric(current, previous float64) Metric {
	return Metric{Current: current, Previous: previous, Change: CalculateChange(current, previous)}
}
