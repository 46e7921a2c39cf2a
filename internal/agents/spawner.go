// Household spawning: creates a synthetic initial population spread over a
// parcel field, with demographics and wealth ceilings.
package agents

import (
	"math"
	"math/rand"

	"github.com/nicolas-f/gdms-usm/internal/world"
)

// Spawner creates households for the simulation.
type Spawner struct {
	rng    *rand.Rand
	nextID HouseholdID
}

// NewSpawner creates a household spawner with the given seed.
func NewSpawner(seed int64) *Spawner {
	return &Spawner{
		rng:    rand.New(rand.NewSource(seed + 300)),
		nextID: 1,
	}
}

// SetNextID sets the next household ID to be issued (used when restoring from DB).
func (s *Spawner) SetNextID(id HouseholdID) {
	s.nextID = id
}

// NextID returns the ID the next spawned household will receive.
func (s *Spawner) NextID() HouseholdID {
	return s.nextID
}

// Populate fills each parcel to roughly fill × its build type capacity.
// Households are assigned to their parcel but not yet moved in.
func (s *Spawner) Populate(parcels []*world.Parcel, fill float64) []*Household {
	var out []*Household
	for _, p := range parcels {
		capacity := float64(world.Capacity(p.BuildType))
		// Jitter occupancy ±25% around the requested fill.
		n := int(math.Round(capacity * fill * (0.75 + s.rng.Float64()*0.5)))
		if n > int(capacity) {
			n = int(capacity)
		}
		for i := 0; i < n; i++ {
			out = append(out, s.Spawn(p))
		}
	}
	return out
}

// Spawn creates one household assigned to p. Richer households favour
// parcels with better amenities.
func (s *Spawner) Spawn(p *world.Parcel) *Household {
	id := s.nextID
	s.nextID++

	var home *world.ParcelID
	if p != nil {
		pid := p.ID
		home = &pid
	}
	amenities := 10
	if p != nil {
		amenities = p.AmenitiesIndex
	}
	return NewHousehold(id, s.weightedAge(), s.maxWealth(amenities), home)
}

func (s *Spawner) weightedAge() int {
	// Household heads: bell curve centered around 45, range 18–95.
	age := 45.0 + s.rng.NormFloat64()*16.0
	if age < 18 {
		age = 18
	}
	if age > 95 {
		age = 95
	}
	return int(age)
}

func (s *Spawner) maxWealth(amenities int) int {
	// Log-normal around a median that rises with local amenities.
	median := 30000.0 + float64(amenities)*1500.0
	w := median * math.Exp(s.rng.NormFloat64()*0.45)
	if w < 8000 {
		w = 8000
	}
	if w > 250000 {
		w = 250000
	}
	return int(w)
}
