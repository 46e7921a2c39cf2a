package world

// NeighborProvider answers spatial adjacency. Implementations must return the
// same ordered list for the same parcel on every call.
type NeighborProvider interface {
	NeighborsOf(id ParcelID) []ParcelID
}

// AdjacencyTable is a precomputed adjacency list, typically imported alongside
// the parcels from a geometry pipeline.
type AdjacencyTable map[ParcelID][]ParcelID

// NeighborsOf returns a copy of the stored adjacency list.
func (t AdjacencyTable) NeighborsOf(id ParcelID) []ParcelID {
	src := t[id]
	if len(src) == 0 {
		return nil
	}
	out := make([]ParcelID, len(src))
	copy(out, src)
	return out
}
