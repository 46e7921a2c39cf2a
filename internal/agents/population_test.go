package agents

import (
	"errors"
	"math"
	"testing"

	"github.com/nicolas-f/gdms-usm/internal/world"
)

func newTestPopulation(t *testing.T, parcels ...*world.Parcel) *Population {
	t.Helper()
	adj := world.AdjacencyTable{}
	for i, p := range parcels {
		for j, q := range parcels {
			if i != j {
				adj[p.ID] = append(adj[p.ID], q.ID)
			}
		}
	}
	pop, err := NewPopulation(parcels, adj)
	if err != nil {
		t.Fatalf("new population: %v", err)
	}
	return pop
}

func housed(id HouseholdID, age, maxWealth int, p *world.Parcel) *Household {
	pid := p.ID
	return NewHousehold(id, age, maxWealth, &pid)
}

func TestMoveInMoveOutRoundTrip(t *testing.T) {
	p := &world.Parcel{ID: 1, BaseDensity: 2, MaxDensity: 10, InverseArea: 0.01}
	pop := newTestPopulation(t, p)
	h := NewHousehold(7, 40, 50000, nil)
	if err := pop.Admit(h); err != nil {
		t.Fatalf("admit: %v", err)
	}

	if err := pop.MoveIn(h, p); err != nil {
		t.Fatalf("move in: %v", err)
	}
	if math.Abs(p.Density()-2.01) > 1e-12 {
		t.Fatalf("density after move in = %v, want 2.01", p.Density())
	}
	if h.ParcelID == nil || *h.ParcelID != p.ID || !p.HasResident(uint64(h.ID)) {
		t.Fatalf("residency not linked both ways")
	}

	if err := pop.MoveOut(h); err != nil {
		t.Fatalf("move out: %v", err)
	}
	if p.Density() != 2 {
		t.Fatalf("density after move out = %v, want exactly 2", p.Density())
	}
	if h.ParcelID != nil || p.Population() != 0 {
		t.Fatalf("residency not cleared")
	}

	if err := pop.MoveOut(h); !errors.Is(err, ErrNoParcel) {
		t.Fatalf("second move out err = %v, want ErrNoParcel", err)
	}
	if err := p.RemoveResident(uint64(h.ID)); !errors.Is(err, world.ErrNotResident) {
		t.Fatalf("remove absent resident err = %v, want ErrNotResident", err)
	}
}

func TestMoveInRejectsHoused(t *testing.T) {
	a := &world.Parcel{ID: 1, MaxDensity: 10, InverseArea: 1}
	b := &world.Parcel{ID: 2, MaxDensity: 10, InverseArea: 1}
	pop := newTestPopulation(t, a, b)
	h := housed(1, 30, 1000, a)
	if err := pop.Admit(h); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := pop.MoveIn(h, b); !errors.Is(err, ErrAlreadyHoused) {
		t.Fatalf("err = %v, want ErrAlreadyHoused", err)
	}
}

func TestAverageWealth(t *testing.T) {
	p := &world.Parcel{ID: 1, MaxDensity: 10, InverseArea: 1}
	pop := newTestPopulation(t, p)
	if got := pop.AverageWealth(p); got != 0 {
		t.Fatalf("empty parcel average wealth = %d, want 0", got)
	}
	for _, h := range []*Household{
		housed(1, 30, 45000, p), // 22500
		housed(2, 70, 49875, p), // 49875
	} {
		if err := pop.Admit(h); err != nil {
			t.Fatalf("admit: %v", err)
		}
	}
	if got := pop.AverageWealth(p); got != 36187 {
		t.Fatalf("average wealth = %d, want 36187", got)
	}
}

func TestAverageWealthSixResidents(t *testing.T) {
	p := &world.Parcel{ID: 8, MaxDensity: 20, InverseArea: 1}
	pop := newTestPopulation(t, p)
	for _, h := range []*Household{
		housed(1, 24, 48752, p),  // 19500
		housed(2, 35, 143258, p), // 83567
		housed(3, 68, 26587, p),  // 26587
		housed(4, 47, 49852, p),  // 39050
		housed(5, 25, 69703, p),  // 29042
		housed(6, 64, 87012, p),  // 87012
	} {
		if err := pop.Admit(h); err != nil {
			t.Fatalf("admit: %v", err)
		}
	}
	// 284758 / 6 truncates.
	if got := pop.AverageWealth(p); got != 47459 {
		t.Fatalf("average wealth = %d, want 47459", got)
	}
}

func TestRelocate(t *testing.T) {
	a := &world.Parcel{ID: 1, MaxDensity: 10, InverseArea: 1}
	b := &world.Parcel{ID: 2, MaxDensity: 10, InverseArea: 1}
	pop := newTestPopulation(t, a, b)
	h := housed(5, 30, 1000, a)
	if err := pop.Admit(h); err != nil {
		t.Fatalf("admit: %v", err)
	}

	if err := pop.Relocate(h, b); err != nil {
		t.Fatalf("relocate: %v", err)
	}
	if *h.ParcelID != b.ID || a.Population() != 0 || b.Population() != 1 {
		t.Fatalf("relocation not applied: parcel=%d a=%d b=%d", *h.ParcelID, a.Population(), b.Population())
	}
	if pop.Census() != pop.Len() {
		t.Fatalf("census %d != households %d", pop.Census(), pop.Len())
	}
}

func TestRelocateRollsBack(t *testing.T) {
	a := &world.Parcel{ID: 1, MaxDensity: 10, InverseArea: 1}
	b := &world.Parcel{ID: 2, MaxDensity: 10, InverseArea: 1}
	pop := newTestPopulation(t, a, b)
	h := housed(5, 30, 1000, a)
	if err := pop.Admit(h); err != nil {
		t.Fatalf("admit: %v", err)
	}
	// A stale entry on b makes the move-in half fail.
	if err := b.AddResident(uint64(h.ID)); err != nil {
		t.Fatalf("seed stale resident: %v", err)
	}

	err := pop.Relocate(h, b)
	if !errors.Is(err, world.ErrAlreadyResident) {
		t.Fatalf("relocate err = %v, want ErrAlreadyResident", err)
	}
	if h.ParcelID == nil || *h.ParcelID != a.ID || !a.HasResident(uint64(h.ID)) {
		t.Fatalf("household not restored to its previous parcel")
	}
	if a.Density() != 1 {
		t.Fatalf("origin density = %v, want 1", a.Density())
	}

	unknown := &world.Parcel{ID: 99}
	if err := pop.Relocate(h, unknown); !errors.Is(err, ErrUnknownParcel) {
		t.Fatalf("unknown destination err = %v, want ErrUnknownParcel", err)
	}
	if *h.ParcelID != a.ID {
		t.Fatalf("household moved despite unknown destination")
	}
}

func TestAdmitAndRemove(t *testing.T) {
	p := &world.Parcel{ID: 1, MaxDensity: 10, InverseArea: 1}
	pop := newTestPopulation(t, p)
	h := housed(3, 30, 1000, p)
	if err := pop.Admit(h); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := pop.Admit(housed(3, 40, 1000, p)); !errors.Is(err, ErrDuplicateHousehold) {
		t.Fatalf("duplicate admit err = %v", err)
	}
	stray := NewHousehold(4, 30, 1000, nil)
	stray.ParcelID = new(world.ParcelID)
	*stray.ParcelID = 42
	if err := pop.Admit(stray); !errors.Is(err, ErrUnknownParcel) {
		t.Fatalf("unknown parcel admit err = %v", err)
	}

	got, err := pop.Remove(3)
	if err != nil || got != h {
		t.Fatalf("remove = %v, %v", got, err)
	}
	if p.Population() != 0 || pop.Len() != 0 {
		t.Fatalf("remove left residue: pop=%d len=%d", p.Population(), pop.Len())
	}
	if _, err := pop.Remove(3); !errors.Is(err, ErrUnknownHousehold) {
		t.Fatalf("second remove err = %v", err)
	}
}

func TestVacanciesAndOrdering(t *testing.T) {
	full := &world.Parcel{ID: 9, MaxDensity: 1, InverseArea: 1}
	a := &world.Parcel{ID: 4, MaxDensity: 5, InverseArea: 1}
	b := &world.Parcel{ID: 2, MaxDensity: 5, InverseArea: 1}
	pop := newTestPopulation(t, full, a, b)
	for _, h := range []*Household{housed(20, 30, 1, full), housed(10, 30, 1, a)} {
		if err := pop.Admit(h); err != nil {
			t.Fatalf("admit: %v", err)
		}
	}

	vac := pop.Vacancies(nil)
	if len(vac) != 2 || vac[0] != a || vac[1] != b {
		t.Fatalf("vacancies not in import order without full parcel: %v", vac)
	}
	exclude := a.ID
	if vac := pop.Vacancies(&exclude); len(vac) != 1 || vac[0] != b {
		t.Fatalf("vacancies did not exclude parcel %d", exclude)
	}

	ids := pop.HouseholdIDs()
	if len(ids) != 2 || ids[0] != 10 || ids[1] != 20 {
		t.Fatalf("household ids not ascending: %v", ids)
	}
	if n := pop.NeighborsOf(a.ID); len(n) != 2 || n[0] != full || n[1] != b {
		t.Fatalf("neighbors not in provider order: %v", n)
	}
}

func TestSpawnerPopulate(t *testing.T) {
	p := &world.Parcel{ID: 1, BuildType: world.BuildMidFlats, AmenitiesIndex: 15}
	s := NewSpawner(7)
	households := s.Populate([]*world.Parcel{p}, 1)
	if len(households) == 0 || len(households) > world.Capacity(p.BuildType) {
		t.Fatalf("spawned %d households, capacity %d", len(households), world.Capacity(p.BuildType))
	}
	for i, h := range households {
		if h.ID != HouseholdID(i+1) {
			t.Fatalf("household %d has id %d", i, h.ID)
		}
		if h.ParcelID == nil || *h.ParcelID != p.ID {
			t.Fatalf("household %d not assigned to parcel", h.ID)
		}
		if h.Age < 18 || h.Age > 95 || h.MaxWealth < 8000 || h.MaxWealth > 250000 {
			t.Fatalf("household %d out of range: age=%d max_wealth=%d", h.ID, h.Age, h.MaxWealth)
		}
	}
	if s.NextID() != HouseholdID(len(households)+1) {
		t.Fatalf("next id = %d", s.NextID())
	}

	again := NewSpawner(7).Populate([]*world.Parcel{p}, 1)
	if len(again) != len(households) || again[0].MaxWealth != households[0].MaxWealth {
		t.Fatalf("spawner not deterministic for a fixed seed")
	}
}
