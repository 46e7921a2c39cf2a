// Population dynamics: households joining and leaving between steps, and
// yearly aging.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

// AddHousehold brings a new household (birth, immigration) into the running
// simulation. It must carry a parcel assignment. Its dissatisfaction memory
// starts empty.
func (s *Simulation) AddHousehold(h *agents.Household) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addHouseholdLocked(h)
}

// SpawnHousehold creates a household on parcel with the next free ID and adds
// it to the simulation.
func (s *Simulation) SpawnHousehold(age, maxWealth int, parcel world.ParcelID) (*agents.Household, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Population == nil {
		return nil, fmt.Errorf("spawn household in state %s: %w", s.state, ErrInvalidState)
	}
	h := agents.NewHousehold(s.nextHouseholdIDLocked(), age, maxWealth, &parcel)
	if err := s.addHouseholdLocked(h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Simulation) addHouseholdLocked(h *agents.Household) error {
	if s.state != StateInitialized {
		return fmt.Errorf("add household in state %s: %w", s.state, ErrInvalidState)
	}
	if !h.Housed() {
		return fmt.Errorf("household %d: %w", h.ID, agents.ErrNoParcel)
	}
	if err := s.Population.Admit(h); err != nil {
		return err
	}
	s.decider.AddHousehold(h.ID)
	s.pending = append(s.pending, householdRecord(h))
	s.notifyAdded(h)

	slog.Debug("household added", "household", h.ID, "parcel", *h.ParcelID)
	return nil
}

// RemoveHousehold takes a household out of the simulation (death, emigration).
func (s *Simulation) RemoveHousehold(id agents.HouseholdID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitialized {
		return fmt.Errorf("remove household in state %s: %w", s.state, ErrInvalidState)
	}
	h, err := s.Population.Remove(id)
	if err != nil {
		return err
	}
	s.decider.DeleteHousehold(id)
	s.notifyDeleted(h)

	slog.Debug("household removed", "household", id)
	return nil
}

// NextHouseholdID returns one past the highest household ID in use.
func (s *Simulation) NextHouseholdID() agents.HouseholdID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextHouseholdIDLocked()
}

func (s *Simulation) nextHouseholdIDLocked() agents.HouseholdID {
	if s.Population == nil {
		return 1
	}
	ids := s.Population.HouseholdIDs()
	if len(ids) == 0 {
		return 1
	}
	return ids[len(ids)-1] + 1
}

// DecisionMemory returns a household's dissatisfaction samples, oldest first.
func (s *Simulation) DecisionMemory(id agents.HouseholdID) ([]float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decider.Memory(id)
}

// ageHouseholds advances every household by one year.
func (s *Simulation) ageHouseholds() {
	for _, h := range s.Population.Households() {
		h.Grow()
	}
}
