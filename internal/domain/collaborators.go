package domain

import "github.com/paulmach/orb"

// CoordinateTransformer reprojects a point between coordinate reference
// systems. Implementations must be pure functions of their inputs.
type CoordinateTransformer interface {
	Transform(x, y float64, srcEPSG, dstEPSG int) (float64, float64, error)
}

// HullBuilder computes the smallest enclosing polygon of a point set.
// ok is false for degenerate inputs (fewer than 3 points, or all collinear);
// that is a valid outcome, not an error.
type HullBuilder interface {
	ConvexHull(points []orb.Point) (hull orb.Polygon, ok bool)
}
