package world

import (
	"math"
	"testing"
)

func TestMapNeighborsInDirectionOrder(t *testing.T) {
	m := NewMap(1)
	center := &Parcel{ID: 100, Coord: HexCoord{}}
	if err := m.Place(center); err != nil {
		t.Fatalf("place center: %v", err)
	}
	for i, d := range HexNeighborDirections {
		// IDs deliberately not in direction order.
		if err := m.Place(&Parcel{ID: ParcelID(10 - i), Coord: d}); err != nil {
			t.Fatalf("place %v: %v", d, err)
		}
	}

	got := m.NeighborsOf(center.ID)
	if len(got) != 6 {
		t.Fatalf("center has %d neighbors, want 6", len(got))
	}
	for i, id := range got {
		if id != ParcelID(10-i) {
			t.Fatalf("neighbor %d = %d, want %d", i, id, 10-i)
		}
	}
	// Edge cell (1,0) touches the center, (1,-1) and (0,1).
	if n := m.NeighborsOf(10); len(n) != 3 {
		t.Fatalf("edge cell has %d neighbors, want 3: %v", len(n), n)
	}
	if n := m.NeighborsOf(999); n != nil {
		t.Fatalf("unknown parcel has neighbors %v", n)
	}
}

func TestMapPlaceRejects(t *testing.T) {
	m := NewMap(1)
	if err := m.Place(&Parcel{ID: 1, Coord: HexCoord{Q: 2}}); err == nil {
		t.Fatalf("out-of-bounds placement accepted")
	}
	if err := m.Place(&Parcel{ID: 1}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := m.Place(&Parcel{ID: 2}); err == nil {
		t.Fatalf("overlapping placement accepted")
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := SmallTestConfig()
	m, parcels := Generate(cfg)
	if len(parcels) != 37 || m.ParcelCount() != 37 {
		t.Fatalf("radius 3 field has %d parcels (map %d), want 37", len(parcels), m.ParcelCount())
	}

	_, again := Generate(cfg)
	for i, p := range parcels {
		if p.ID != ParcelID(i) {
			t.Fatalf("parcel %d has id %d", i, p.ID)
		}
		if !p.BuildType.Valid() {
			t.Fatalf("parcel %d has build type %d", p.ID, p.BuildType)
		}
		if p.Population() != 0 || p.Density() != 0 {
			t.Fatalf("parcel %d not empty", p.ID)
		}
		if p.MaxDensity != float64(Capacity(p.BuildType))*p.InverseArea {
			t.Fatalf("parcel %d max density %v inconsistent with capacity", p.ID, p.MaxDensity)
		}
		if p.AmenitiesIndex < 0 || p.AmenitiesIndex > 20 {
			t.Fatalf("parcel %d amenities %d out of range", p.ID, p.AmenitiesIndex)
		}
		q := again[i]
		if q.BuildType != p.BuildType || q.AmenitiesIndex != p.AmenitiesIndex || q.ZoneID != p.ZoneID {
			t.Fatalf("parcel %d differs between runs with the same seed", p.ID)
		}
	}

	if parcels[18].Coord != (HexCoord{}) || parcels[18].ZoneID != cfg.CoreZone {
		t.Fatalf("center parcel %+v not in core zone", parcels[18].Coord)
	}
}

func TestHexGeometry(t *testing.T) {
	poly := HexPolygon(HexCoord{Q: 2, R: -1}, 50)
	wantArea := 3 * math.Sqrt(3) / 2 * 50 * 50
	if got := 1 / InverseArea(poly); math.Abs(got-wantArea) > 1e-6 {
		t.Fatalf("hex area = %v, want %v", got, wantArea)
	}
	if InverseArea(nil) != 0 {
		t.Fatalf("nil geometry must have inverse area 0")
	}

	p := &Parcel{ID: 1, Footprint: poly}
	parsed, err := ParseFootprint(FootprintWKT(p))
	if err != nil {
		t.Fatalf("parse footprint: %v", err)
	}
	if math.Abs(InverseArea(parsed)-InverseArea(poly)) > 1e-12 {
		t.Fatalf("WKT round trip changed the area")
	}
	if b := p.Bounds(); b.Max.X()-b.Min.X() <= 0 {
		t.Fatalf("empty bounds for a hex footprint: %v", b)
	}

	empty, err := ParseFootprint("")
	if err != nil || empty != nil {
		t.Fatalf("empty WKT = %v, %v", empty, err)
	}
	if FootprintWKT(&Parcel{}) != "" {
		t.Fatalf("parcel without footprint must encode as empty WKT")
	}
}
