// Package geo implements the geodesy and geometry collaborators: EPSG
// coordinate transforms backed by the pure-Go wgs84 library, and convex hull
// construction over orb point sets.
package geo

import (
	"fmt"
	"math"

	"github.com/wroge/wgs84"
)

// Transformer reprojects points between EPSG coordinate reference systems.
// It implements domain.CoordinateTransformer.
type Transformer struct {
	repo *wgs84.Repository
}

// NewTransformer builds a transformer over the wgs84 EPSG repository.
func NewTransformer() *Transformer {
	return &Transformer{repo: wgs84.EPSG()}
}

// Transform converts (x, y) from srcEPSG to dstEPSG. x is the east-facing
// axis (longitude or easting), y the north-facing one.
func (t *Transformer) Transform(x, y float64, srcEPSG, dstEPSG int) (float64, float64, error) {
	if srcEPSG == dstEPSG {
		return x, y, nil
	}

	src := t.repo.Code(srcEPSG)
	if src == nil {
		return 0, 0, fmt.Errorf("transform: unsupported source EPSG:%d", srcEPSG)
	}
	dst := t.repo.Code(dstEPSG)
	if dst == nil {
		return 0, 0, fmt.Errorf("transform: unsupported destination EPSG:%d", dstEPSG)
	}

	tx, ty, _ := wgs84.Transform(src, dst)(x, y, 0)
	if math.IsNaN(tx) || math.IsNaN(ty) || math.IsInf(tx, 0) || math.IsInf(ty, 0) {
		return 0, 0, fmt.Errorf("transform: EPSG:%d -> EPSG:%d produced no result for (%g, %g)",
			srcEPSG, dstEPSG, x, y)
	}
	return tx, ty, nil
}
