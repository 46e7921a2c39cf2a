package decision

import (
	"math"

	"github.com/nicolas-f/gdms-usm/internal/agents"
)

const (
	SimilarityTolerance = 0.35 // Relative wealth gap beyond which a neighbor is "unlike"
	SchellingThreshold  = 1.5  // Cumulated unlike share strictly above this moves
)

// Schelling measures how unlike a household is to its neighborhood: the share
// of co-residents and adjacent-parcel residents whose wealth differs from its
// own by more than Tolerance (relative). The household moves once the sum of
// that share over its memory exceeds Threshold.
//
// This model is a stand-in pending the calibrated neighborhood norm; it keeps
// the contract: deterministic for a given state and non-decreasing in the
// number of unlike neighbors.
type Schelling struct {
	Tolerance float64
	Threshold float64
	memories
}

// NewSchelling creates a Schelling decision maker.
func NewSchelling(memory int, tolerance, threshold float64) *Schelling {
	return &Schelling{
		Tolerance: tolerance,
		Threshold: threshold,
		memories:  newMemories(memory),
	}
}

func (s *Schelling) Name() string { return ModelSchelling }

// Unlikeness returns the unlike share of h's neighborhood, 0 when alone.
func (s *Schelling) Unlikeness(h *agents.Household, v View) (float64, error) {
	home, err := v.Housing(h)
	if err != nil {
		return 0, err
	}

	own := h.Wealth()
	total, unlike := 0, 0
	count := func(others []*agents.Household) {
		for _, o := range others {
			if o.ID == h.ID {
				continue
			}
			total++
			if s.unlike(own, o.Wealth()) {
				unlike++
			}
		}
	}

	count(v.ResidentsOf(home))
	for _, n := range v.NeighborsOf(home.ID) {
		count(v.ResidentsOf(n))
	}

	if total == 0 {
		return 0, nil
	}
	return float64(unlike) / float64(total), nil
}

func (s *Schelling) unlike(a, b int) bool {
	scale := math.Max(math.Max(float64(a), float64(b)), 1)
	return math.Abs(float64(a-b))/scale > s.Tolerance
}

// IsMoving records the unlike share and compares the cumulated memory with
// the threshold.
func (s *Schelling) IsMoving(h *agents.Household, v View) (bool, error) {
	mem, err := s.history(h.ID)
	if err != nil {
		return false, err
	}
	d, err := s.Unlikeness(h, v)
	if err != nil {
		return false, err
	}
	mem.Push(d)
	return agents.Sum(mem) > s.Threshold, nil
}
