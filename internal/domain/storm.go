package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// Storm is a spatiotemporally correlated cluster of lightning events,
// belonging to exactly one experiment. Members are ordered by event time,
// ascending, and the derived attributes are pure functions of that ordered
// list — see FeatureCalculator. A finalized storm is never appended to;
// membership changes require a rebuild.
type Storm struct {
	ID           int64
	ExperimentID int64

	// Events is the ordered, non-empty member list.
	Events []*Event

	Start time.Time
	End   time.Time

	// Centroids, one statically declared pair per CRS.
	X4258  float64
	Y4258  float64
	X4326  float64
	Y4326  float64
	X25831 float64
	Y25831 float64

	LightningsPerMinute float64
	TravelledDistance   float64 // meters
	CardinalDirection   float64 // degrees, 0 = north, 90 = east
	Speed               float64 // m/s
	NumberOfLightnings  int

	// Convex hulls per CRS. Nil when fewer than 3 non-collinear members.
	Hull4258  orb.Polygon
	Hull4326  orb.Polygon
	Hull25831 orb.Polygon

	ComputedAt time.Time
}
