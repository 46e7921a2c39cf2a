package world

import (
	"fmt"
	"sort"
)

// Map indexes parcels laid out on a hex grid and answers adjacency queries
// from grid topology.
type Map struct {
	byCoord map[HexCoord]ParcelID
	coords  map[ParcelID]HexCoord
	Radius  int `json:"radius"`
}

// NewMap creates an empty map with the given radius.
// A hex grid of radius R contains hexes where max(|q|, |r|, |s|) <= R.
func NewMap(radius int) *Map {
	return &Map{
		byCoord: make(map[HexCoord]ParcelID),
		coords:  make(map[ParcelID]HexCoord),
		Radius:  radius,
	}
}

// Place registers a parcel at its coordinate.
func (m *Map) Place(p *Parcel) error {
	if !m.InBounds(p.Coord) {
		return fmt.Errorf("parcel %d at (%d,%d) outside radius %d", p.ID, p.Coord.Q, p.Coord.R, m.Radius)
	}
	if other, ok := m.byCoord[p.Coord]; ok && other != p.ID {
		return fmt.Errorf("parcel %d at (%d,%d) overlaps parcel %d", p.ID, p.Coord.Q, p.Coord.R, other)
	}
	m.byCoord[p.Coord] = p.ID
	m.coords[p.ID] = p.Coord
	return nil
}

// At returns the parcel ID at the given coordinate.
func (m *Map) At(coord HexCoord) (ParcelID, bool) {
	id, ok := m.byCoord[coord]
	return id, ok
}

// InBounds returns true if the coordinate is within the map radius.
func (m *Map) InBounds(coord HexCoord) bool {
	return Distance(coord, HexCoord{}) <= m.Radius
}

// NeighborsOf returns the parcels on the hex cells around id, in
// HexNeighborDirections order. Unknown parcels have no neighbors.
func (m *Map) NeighborsOf(id ParcelID) []ParcelID {
	coord, ok := m.coords[id]
	if !ok {
		return nil
	}
	var out []ParcelID
	for _, n := range coord.Neighbors() {
		if nid, ok := m.byCoord[n]; ok {
			out = append(out, nid)
		}
	}
	return out
}

// ParcelCount returns the number of placed parcels.
func (m *Map) ParcelCount() int {
	return len(m.coords)
}

// ParcelIDs returns every placed parcel in ascending ID order.
func (m *Map) ParcelIDs() []ParcelID {
	ids := make([]ParcelID, 0, len(m.coords))
	for id := range m.coords {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(radius=%d, parcels=%d)", m.Radius, m.ParcelCount())
}
