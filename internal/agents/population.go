// Population index: resolves households and parcels by ID and owns every
// change to the household ↔ parcel residency relation.
package agents

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nicolas-f/gdms-usm/internal/world"
)

var (
	ErrUnknownHousehold   = errors.New("unknown household")
	ErrUnknownParcel      = errors.New("unknown parcel")
	ErrDuplicateHousehold = errors.New("duplicate household")
	ErrDuplicateParcel    = errors.New("duplicate parcel")
	ErrAlreadyHoused      = errors.New("household already has a parcel")
)

// Population is the central ID index of households and parcels.
type Population struct {
	households map[HouseholdID]*Household
	parcels    map[world.ParcelID]*world.Parcel
	order      []world.ParcelID // Import order
	neighbors  world.NeighborProvider
}

// NewPopulation indexes a fixed set of parcels. Parcels keep their import
// order for iteration. neighbors may be nil for a topology without adjacency.
func NewPopulation(parcels []*world.Parcel, neighbors world.NeighborProvider) (*Population, error) {
	pop := &Population{
		households: make(map[HouseholdID]*Household),
		parcels:    make(map[world.ParcelID]*world.Parcel, len(parcels)),
		order:      make([]world.ParcelID, 0, len(parcels)),
		neighbors:  neighbors,
	}
	for _, p := range parcels {
		if _, ok := pop.parcels[p.ID]; ok {
			return nil, fmt.Errorf("parcel %d: %w", p.ID, ErrDuplicateParcel)
		}
		pop.parcels[p.ID] = p
		pop.order = append(pop.order, p.ID)
	}
	return pop, nil
}

// Household looks up a household by ID.
func (pop *Population) Household(id HouseholdID) (*Household, bool) {
	h, ok := pop.households[id]
	return h, ok
}

// Parcel looks up a parcel by ID.
func (pop *Population) Parcel(id world.ParcelID) (*world.Parcel, bool) {
	p, ok := pop.parcels[id]
	return p, ok
}

// Parcels returns all parcels in import order.
func (pop *Population) Parcels() []*world.Parcel {
	out := make([]*world.Parcel, 0, len(pop.order))
	for _, id := range pop.order {
		out = append(out, pop.parcels[id])
	}
	return out
}

// HouseholdIDs returns all household IDs in ascending order.
func (pop *Population) HouseholdIDs() []HouseholdID {
	ids := make([]HouseholdID, 0, len(pop.households))
	for id := range pop.households {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Households returns all households in ascending ID order.
func (pop *Population) Households() []*Household {
	ids := pop.HouseholdIDs()
	out := make([]*Household, len(ids))
	for i, id := range ids {
		out[i] = pop.households[id]
	}
	return out
}

// Len returns the number of households.
func (pop *Population) Len() int {
	return len(pop.households)
}

// Census counts residents across all parcels.
func (pop *Population) Census() int {
	total := 0
	for _, p := range pop.parcels {
		total += p.Population()
	}
	return total
}

// Admit adds a household to the index. If it carries a parcel assignment it
// is moved in immediately.
func (pop *Population) Admit(h *Household) error {
	if _, ok := pop.households[h.ID]; ok {
		return fmt.Errorf("household %d: %w", h.ID, ErrDuplicateHousehold)
	}
	var target *world.Parcel
	if h.ParcelID != nil {
		p, ok := pop.parcels[*h.ParcelID]
		if !ok {
			return fmt.Errorf("household %d assigned to parcel %d: %w", h.ID, *h.ParcelID, ErrUnknownParcel)
		}
		target = p
		h.ParcelID = nil
	}
	pop.households[h.ID] = h
	if target != nil {
		if err := pop.MoveIn(h, target); err != nil {
			delete(pop.households, h.ID)
			pid := target.ID
			h.ParcelID = &pid
			return err
		}
	}
	return nil
}

// Remove moves a household out of its parcel and drops it from the index.
func (pop *Population) Remove(id HouseholdID) (*Household, error) {
	h, ok := pop.households[id]
	if !ok {
		return nil, fmt.Errorf("household %d: %w", id, ErrUnknownHousehold)
	}
	if h.Housed() {
		if err := pop.MoveOut(h); err != nil {
			return nil, err
		}
	}
	delete(pop.households, id)
	return h, nil
}

// Housing resolves the household's current parcel.
func (pop *Population) Housing(h *Household) (*world.Parcel, error) {
	if h.ParcelID == nil {
		return nil, fmt.Errorf("household %d: %w", h.ID, ErrNoParcel)
	}
	p, ok := pop.parcels[*h.ParcelID]
	if !ok {
		return nil, fmt.Errorf("household %d on parcel %d: %w", h.ID, *h.ParcelID, ErrUnknownParcel)
	}
	return p, nil
}

// MoveIn adds h to p's residents and points h at p. The household must not
// already live somewhere.
func (pop *Population) MoveIn(h *Household, p *world.Parcel) error {
	if h.ParcelID != nil {
		return fmt.Errorf("household %d on parcel %d: %w", h.ID, *h.ParcelID, ErrAlreadyHoused)
	}
	if _, ok := pop.parcels[p.ID]; !ok {
		return fmt.Errorf("parcel %d: %w", p.ID, ErrUnknownParcel)
	}
	if err := p.AddResident(uint64(h.ID)); err != nil {
		return err
	}
	pid := p.ID
	h.ParcelID = &pid
	return nil
}

// MoveOut removes h from its parcel and clears its parcel reference.
func (pop *Population) MoveOut(h *Household) error {
	p, err := pop.Housing(h)
	if err != nil {
		return err
	}
	if err := p.RemoveResident(uint64(h.ID)); err != nil {
		return err
	}
	h.ParcelID = nil
	return nil
}

// Relocate moves h from its current parcel to dest as one operation. On
// failure the household is left where it was.
func (pop *Population) Relocate(h *Household, dest *world.Parcel) error {
	from, err := pop.Housing(h)
	if err != nil {
		return err
	}
	if _, ok := pop.parcels[dest.ID]; !ok {
		return fmt.Errorf("parcel %d: %w", dest.ID, ErrUnknownParcel)
	}
	if err := pop.MoveOut(h); err != nil {
		return err
	}
	if err := pop.MoveIn(h, dest); err != nil {
		if rbErr := pop.MoveIn(h, from); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to parcel %d: %w", from.ID, rbErr))
		}
		return err
	}
	return nil
}

// ResidentsOf returns the households living on p in ascending ID order.
func (pop *Population) ResidentsOf(p *world.Parcel) []*Household {
	ids := p.Residents()
	out := make([]*Household, 0, len(ids))
	for _, id := range ids {
		if h, ok := pop.households[HouseholdID(id)]; ok {
			out = append(out, h)
		}
	}
	return out
}

// AverageWealth is the truncated mean wealth of p's residents, 0 when empty.
func (pop *Population) AverageWealth(p *world.Parcel) int {
	residents := pop.ResidentsOf(p)
	if len(residents) == 0 {
		return 0
	}
	total := 0
	for _, h := range residents {
		total += h.Wealth()
	}
	return total / len(residents)
}

// NeighborsOf resolves a parcel's adjacency list, in provider order.
func (pop *Population) NeighborsOf(id world.ParcelID) []*world.Parcel {
	if pop.neighbors == nil {
		return nil
	}
	ids := pop.neighbors.NeighborsOf(id)
	out := make([]*world.Parcel, 0, len(ids))
	for _, nid := range ids {
		if p, ok := pop.parcels[nid]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Vacancies returns the parcels that are not full, in import order,
// skipping exclude.
func (pop *Population) Vacancies(exclude *world.ParcelID) []*world.Parcel {
	var out []*world.Parcel
	for _, id := range pop.order {
		if exclude != nil && id == *exclude {
			continue
		}
		if p := pop.parcels[id]; !p.IsFull() {
			out = append(out, p)
		}
	}
	return out
}
