package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// FeatureCalculator derives the attributes of a finalized storm from its
// ordered member list. Computations run in a fixed order because later
// steps depend on earlier results (speed needs travelled distance, the
// projected centroid needs the geographic one).
type FeatureCalculator struct {
	transformer CoordinateTransformer
	hull        HullBuilder
}

// NewFeatureCalculator wires the geodesy and geometry collaborators.
func NewFeatureCalculator(transformer CoordinateTransformer, hull HullBuilder) *FeatureCalculator {
	return &FeatureCalculator{transformer: transformer, hull: hull}
}

// Compute fills in every derived attribute of s. The member list must be
// non-empty and time-ascending; it is not reordered.
func (c *FeatureCalculator) Compute(s *Storm) error {
	if len(s.Events) == 0 {
		return errors.New("compute storm features: no member events")
	}

	s.Start = s.Events[0].Time
	s.End = s.Events[len(s.Events)-1].Time
	s.NumberOfLightnings = len(s.Events)

	if err := c.computeCentroids(s); err != nil {
		return err
	}
	c.computeLightningsPerMinute(s)
	c.computeTravelledDistance(s)
	c.computeSpeed(s)
	if err := c.computeConvexHulls(s); err != nil {
		return err
	}

	s.ComputedAt = clock.Now()
	return nil
}

func (c *FeatureCalculator) computeCentroids(s *Storm) error {
	var sumX, sumY float64
	for _, ev := range s.Events {
		sumX += ev.X4258
		sumY += ev.Y4258
	}
	n := float64(len(s.Events))
	s.X4258 = sumX / n
	s.Y4258 = sumY / n

	var err error
	s.X4326, s.Y4326, err = c.transformPoint(s.X4258, s.Y4258, EPSGWGS84)
	if err != nil {
		return err
	}
	s.X25831, s.Y25831, err = c.transformPoint(s.X4258, s.Y4258, EPSGProjected)
	return err
}

func (c *FeatureCalculator) transformPoint(x, y float64, dst int) (float64, float64, error) {
	tx, ty, err := c.transformer.Transform(x, y, EPSGGeographic, dst)
	if err != nil {
		return 0, 0, fmt.Errorf("transform centroid to EPSG:%d: %w", dst, err)
	}
	return tx, ty, nil
}

func (c *FeatureCalculator) computeLightningsPerMinute(s *Storm) {
	minutes := s.End.Sub(s.Start).Minutes()
	if minutes < 1 {
		minutes = 1
	}
	s.LightningsPerMinute = float64(len(s.Events)) / minutes
}

// computeTravelledDistance derives displacement and bearing from the mean
// projected position of the first versus the last ⌈10%⌉ of members.
func (c *FeatureCalculator) computeTravelledDistance(s *Storm) {
	count := len(s.Events)
	if count == 1 {
		s.TravelledDistance = 0
		s.CardinalDirection = 0
		return
	}

	tenPercent := int(math.Ceil(float64(count) * 0.1))
	firstX, firstY := meanProjected(s.Events[:tenPercent])
	lastX, lastY := meanProjected(s.Events[count-tenPercent:])

	dx := lastX - firstX
	dy := lastY - firstY
	s.TravelledDistance = math.Hypot(dx, dy)
	// Compass bearing: 0° = north, 90° = east.
	s.CardinalDirection = math.Mod(math.Atan2(dx, dy)*180/math.Pi+360, 360)
}

func meanProjected(events []*Event) (float64, float64) {
	var sumX, sumY float64
	for _, ev := range events {
		sumX += ev.X25831
		sumY += ev.Y25831
	}
	n := float64(len(events))
	return sumX / n, sumY / n
}

func (c *FeatureCalculator) computeSpeed(s *Storm) {
	seconds := s.End.Sub(s.Start).Seconds()
	if seconds <= 0 {
		s.Speed = 0
		return
	}
	s.Speed = s.TravelledDistance / seconds
}

func (c *FeatureCalculator) computeConvexHulls(s *Storm) error {
	points := make([]orb.Point, len(s.Events))
	for i, ev := range s.Events {
		points[i] = orb.Point{ev.X4258, ev.Y4258}
	}

	hull, ok := c.hull.ConvexHull(points)
	if !ok {
		s.Hull4258 = nil
		s.Hull4326 = nil
		s.Hull25831 = nil
		return nil
	}
	s.Hull4258 = hull

	var err error
	s.Hull4326, err = c.transformPolygon(hull, EPSGWGS84)
	if err != nil {
		return err
	}
	s.Hull25831, err = c.transformPolygon(hull, EPSGProjected)
	return err
}

func (c *FeatureCalculator) transformPolygon(p orb.Polygon, dst int) (orb.Polygon, error) {
	out := make(orb.Polygon, len(p))
	for i, ring := range p {
		outRing := make(orb.Ring, len(ring))
		for j, pt := range ring {
			x, y, err := c.transformer.Transform(pt[0], pt[1], EPSGGeographic, dst)
			if err != nil {
				return nil, fmt.Errorf("transform hull to EPSG:%d: %w", dst, err)
			}
			outRing[j] = orb.Point{x, y}
		}
		out[i] = outRing
	}
	return out, nil
}
