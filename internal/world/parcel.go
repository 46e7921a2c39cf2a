// Package world provides land parcels, their development categories, and the
// spatial adjacency used to spread development between neighbors.
package world

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
)

// ParcelID is a unique identifier for a parcel.
type ParcelID uint64

var (
	ErrNotResident      = errors.New("household is not a resident of this parcel")
	ErrAlreadyResident  = errors.New("household is already a resident of this parcel")
	ErrInvalidThreshold = errors.New("invalid build type thresholds")
)

// BuildType is the ordinal development intensity of a parcel.
type BuildType uint8

const (
	BuildLargeHouses  BuildType = 1 // Detached houses on large plots
	BuildSmallHouses  BuildType = 2 // Small houses, terraces
	BuildLowFlats     BuildType = 3 // Low-rise flats
	BuildMidFlats     BuildType = 4 // Mid-rise flats
	BuildHighRise     BuildType = 5 // Dense urban core
	MinBuildType                = BuildLargeHouses
	MaxBuildType                = BuildHighRise
)

// Valid reports whether b is one of the five categories.
func (b BuildType) Valid() bool {
	return b >= MinBuildType && b <= MaxBuildType
}

// Parcel is a land unit holding households.
type Parcel struct {
	ID        ParcelID  `json:"id"`
	Coord     HexCoord  `json:"coord"`
	BuildType BuildType `json:"build_type"`

	// Density is derived: BaseDensity + residents × InverseArea.
	BaseDensity float64 `json:"base_density"`
	MaxDensity  float64 `json:"max_density"`
	InverseArea float64 `json:"inverse_area"` // Density added per resident household

	AmenitiesIndex        int `json:"amenities_index"`
	ConstructibilityIndex int `json:"constructibility_index"`

	ZoneID int    `json:"zone_id"` // Administrative code (INSEE)
	Zoning string `json:"zoning"`

	Footprint orb.Polygon `json:"-"`

	residents []uint64 // Household IDs, ascending
}

// Density returns the current occupancy measure.
func (p *Parcel) Density() float64 {
	return p.BaseDensity + float64(len(p.residents))*p.InverseArea
}

// IsFull reports whether the parcel has reached its capacity.
func (p *Parcel) IsFull() bool {
	return p.Density() >= p.MaxDensity
}

// Population returns the number of resident households.
func (p *Parcel) Population() int {
	return len(p.residents)
}

// Residents returns the resident household IDs in ascending order.
func (p *Parcel) Residents() []uint64 {
	out := make([]uint64, len(p.residents))
	copy(out, p.residents)
	return out
}

// HasResident reports whether id lives here.
func (p *Parcel) HasResident(id uint64) bool {
	_, ok := p.residentIndex(id)
	return ok
}

func (p *Parcel) residentIndex(id uint64) (int, bool) {
	i := sort.Search(len(p.residents), func(i int) bool { return p.residents[i] >= id })
	return i, i < len(p.residents) && p.residents[i] == id
}

// AddResident records id as living on the parcel, raising density by InverseArea.
func (p *Parcel) AddResident(id uint64) error {
	i, ok := p.residentIndex(id)
	if ok {
		return fmt.Errorf("parcel %d, household %d: %w", p.ID, id, ErrAlreadyResident)
	}
	p.residents = append(p.residents, 0)
	copy(p.residents[i+1:], p.residents[i:])
	p.residents[i] = id
	return nil
}

// RemoveResident removes id, lowering density by InverseArea.
func (p *Parcel) RemoveResident(id uint64) error {
	i, ok := p.residentIndex(id)
	if !ok {
		return fmt.Errorf("parcel %d, household %d: %w", p.ID, id, ErrNotResident)
	}
	p.residents = append(p.residents[:i], p.residents[i+1:]...)
	return nil
}

// UpgradePotential is the share of neighbors already built denser than the
// category this parcel's own density supports. Zero without neighbors.
func (p *Parcel) UpgradePotential(t Thresholds, neighbors []BuildType) float64 {
	if len(neighbors) == 0 {
		return 0
	}
	target := t.Target(p.Density())
	denser := 0
	for _, bt := range neighbors {
		if bt > target {
			denser++
		}
	}
	return float64(denser) / float64(len(neighbors))
}

// TargetBuildType returns the category the parcel is heading towards given its
// density and its neighbors. influence is the upgrade potential at which
// neighbors pull the target one category up.
func (p *Parcel) TargetBuildType(t Thresholds, neighbors []BuildType, influence float64) BuildType {
	target := t.Target(p.Density())
	if influence > 0 && target < MaxBuildType && p.UpgradePotential(t, neighbors) >= influence {
		target++
	}
	return target
}

// UpdateBuildType raises the build type to its target in one call. It never
// lowers the build type. Returns true if it changed.
func (p *Parcel) UpdateBuildType(t Thresholds, neighbors []BuildType, influence float64) bool {
	target := p.TargetBuildType(t, neighbors, influence)
	if target <= p.BuildType {
		return false
	}
	p.BuildType = target
	return true
}

// Thresholds is the density ladder t0 < t1 < t2 < t3 separating build types.
type Thresholds [4]float64

// Validate checks the ladder is strictly increasing.
func (t Thresholds) Validate() error {
	for i := 1; i < len(t); i++ {
		if !(t[i] > t[i-1]) {
			return fmt.Errorf("%w: t%d=%g is not above t%d=%g", ErrInvalidThreshold, i, t[i], i-1, t[i-1])
		}
	}
	return nil
}

// Target returns 1 plus the number of thresholds the density strictly exceeds.
func (t Thresholds) Target(density float64) BuildType {
	target := MinBuildType
	for _, th := range t {
		if density > th {
			target++
		}
	}
	return target
}
