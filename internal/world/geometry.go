package world

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"
)

// HexCenter returns the planar center of a pointy-top hex cell of the given
// circumradius (meters).
func HexCenter(c HexCoord, size float64) orb.Point {
	x := size * math.Sqrt(3) * (float64(c.Q) + float64(c.R)/2)
	y := size * 1.5 * float64(c.R)
	return orb.Point{x, y}
}

// HexPolygon returns the closed footprint of a hex cell.
func HexPolygon(c HexCoord, size float64) orb.Polygon {
	center := HexCenter(c, size)
	ring := make(orb.Ring, 0, 7)
	for i := 0; i < 6; i++ {
		angle := math.Pi / 180 * float64(60*i-30)
		ring = append(ring, orb.Point{
			center[0] + size*math.Cos(angle),
			center[1] + size*math.Sin(angle),
		})
	}
	ring = append(ring, ring[0])
	return orb.Polygon{ring}
}

// InverseArea returns 1/area of a footprint, or 0 for degenerate geometry.
func InverseArea(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	area := math.Abs(planar.Area(g))
	if area == 0 {
		return 0
	}
	return 1 / area
}

// Bounds returns the bounding box of the parcel footprint, or an empty bound
// centered on the origin when the parcel has no geometry.
func (p *Parcel) Bounds() orb.Bound {
	if len(p.Footprint) == 0 {
		return orb.Bound{}
	}
	return p.Footprint.Bound()
}

// FootprintWKT encodes the parcel footprint as WKT, empty when absent.
func FootprintWKT(p *Parcel) string {
	if len(p.Footprint) == 0 {
		return ""
	}
	return wkt.MarshalString(p.Footprint)
}

// ParseFootprint decodes a WKT polygon. An empty string yields no footprint.
func ParseFootprint(s string) (orb.Polygon, error) {
	if s == "" {
		return nil, nil
	}
	return wkt.UnmarshalPolygon(s)
}
