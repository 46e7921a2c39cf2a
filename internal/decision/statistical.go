package decision

import (
	"github.com/nicolas-f/gdms-usm/internal/agents"
)

const (
	HouseholdMemory = 3     // Steps of dissatisfaction remembered
	MovingThreshold = 30.0  // Cumulated dissatisfaction strictly above this moves
	CoreZone        = 44109 // Zone code of the core city
)

// Statistical blends amenity deficit, willingness to move and housing fit
// into an immediate dissatisfaction, and moves a household once the sum over
// its memory exceeds Threshold.
type Statistical struct {
	CoreZone  int
	Threshold float64
	memories
}

// NewStatistical creates a statistical decision maker.
func NewStatistical(memory int, threshold float64, coreZone int) *Statistical {
	return &Statistical{
		CoreZone:  coreZone,
		Threshold: threshold,
		memories:  newMemories(memory),
	}
}

func (s *Statistical) Name() string { return ModelStatistical }

// ImmediateDissatisfaction computes
// (20 − amenities)/20 + willMove/48 + idealHousing/100 for h's home parcel.
func (s *Statistical) ImmediateDissatisfaction(h *agents.Household, v View) (float64, error) {
	home, err := v.Housing(h)
	if err != nil {
		return 0, err
	}
	wmc, err := h.WillMoveCoefficient(home, s.CoreZone)
	if err != nil {
		return 0, err
	}
	ihc, err := h.IdealHousingCoefficient(home)
	if err != nil {
		return 0, err
	}

	amenitiesPart := (20.0 - float64(home.AmenitiesIndex)) / 20.0
	willMovePart := float64(wmc) / 48.0
	idealHousingPart := float64(ihc) / 100.0
	return amenitiesPart + willMovePart + idealHousingPart, nil
}

// IsMoving records the immediate dissatisfaction and compares the cumulated
// memory with the threshold.
func (s *Statistical) IsMoving(h *agents.Household, v View) (bool, error) {
	mem, err := s.history(h.ID)
	if err != nil {
		return false, err
	}
	d, err := s.ImmediateDissatisfaction(h, v)
	if err != nil {
		return false, err
	}
	mem.Push(d)
	return agents.Sum(mem) > s.Threshold, nil
}
