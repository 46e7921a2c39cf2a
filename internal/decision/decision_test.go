package decision

import (
	"errors"
	"testing"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

func newView(t *testing.T, parcels []*world.Parcel, households ...*agents.Household) *agents.Population {
	t.Helper()
	adj := world.AdjacencyTable{}
	for i := 1; i < len(parcels); i++ {
		adj[parcels[0].ID] = append(adj[parcels[0].ID], parcels[i].ID)
		adj[parcels[i].ID] = []world.ParcelID{parcels[0].ID}
	}
	pop, err := agents.NewPopulation(parcels, adj)
	if err != nil {
		t.Fatalf("new population: %v", err)
	}
	for _, h := range households {
		if err := pop.Admit(h); err != nil {
			t.Fatalf("admit %d: %v", h.ID, err)
		}
	}
	return pop
}

func on(id agents.HouseholdID, age, maxWealth int, p *world.Parcel) *agents.Household {
	pid := p.ID
	return agents.NewHousehold(id, age, maxWealth, &pid)
}

func TestImmediateDissatisfaction(t *testing.T) {
	p := &world.Parcel{ID: 1, BuildType: world.BuildLowFlats, AmenitiesIndex: 10, ZoneID: CoreZone, MaxDensity: 10, InverseArea: 1}
	h := on(1, 30, 60000, p)
	v := newView(t, []*world.Parcel{p}, h)

	s := NewStatistical(HouseholdMemory, MovingThreshold, CoreZone)
	got, err := s.ImmediateDissatisfaction(h, v)
	if err != nil {
		t.Fatalf("dissatisfaction: %v", err)
	}
	// (20-10)/20 + 42/48 + 88/100
	want := 0.5 + 0.875 + 0.88
	if diff := got - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("dissatisfaction = %v, want %v", got, want)
	}
}

func TestStatisticalThresholdIsStrict(t *testing.T) {
	p := &world.Parcel{ID: 1, BuildType: world.BuildLowFlats, AmenitiesIndex: 10, ZoneID: CoreZone, MaxDensity: 10, InverseArea: 1}
	h := on(1, 30, 60000, p)
	v := newView(t, []*world.Parcel{p}, h)

	probe := NewStatistical(1, 0, CoreZone)
	d, err := probe.ImmediateDissatisfaction(h, v)
	if err != nil {
		t.Fatalf("dissatisfaction: %v", err)
	}

	s := NewStatistical(3, 2*d, CoreZone)
	s.AddHousehold(h.ID)
	for step, want := range []bool{false, false, true, true} {
		moving, err := s.IsMoving(h, v)
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		if moving != want {
			t.Fatalf("step %d: moving = %v, want %v (cumulated %v, threshold %v)", step, moving, want, sumOf(t, s, h.ID), s.Threshold)
		}
	}
	if mem, _ := s.Memory(h.ID); len(mem) != 3 {
		t.Fatalf("memory holds %d samples, want 3", len(mem))
	}

	// Two samples can only reach the threshold, never exceed it.
	short := NewStatistical(2, 2*d, CoreZone)
	short.AddHousehold(h.ID)
	for step := 0; step < 5; step++ {
		if moving, _ := short.IsMoving(h, v); moving {
			t.Fatalf("step %d: moved with cumulated dissatisfaction equal to the threshold", step)
		}
	}
}

func sumOf(t *testing.T, dm DecisionMaker, id agents.HouseholdID) float64 {
	t.Helper()
	c, err := dm.Cumulated(id)
	if err != nil {
		t.Fatalf("cumulated: %v", err)
	}
	return c
}

func TestEmptyHistoryNeverMoves(t *testing.T) {
	s := NewStatistical(0, 0, CoreZone)
	s.AddHousehold(1)
	if c := sumOf(t, s, 1); c != 0 {
		t.Fatalf("fresh household cumulated = %v", c)
	}

	p := &world.Parcel{ID: 1, MaxDensity: 10, InverseArea: 1}
	h := on(1, 30, 60000, p)
	v := newView(t, []*world.Parcel{p}, h)
	if moving, err := s.IsMoving(h, v); err != nil || moving {
		t.Fatalf("zero-capacity memory: moving=%v err=%v", moving, err)
	}
}

func TestUnregisteredHousehold(t *testing.T) {
	p := &world.Parcel{ID: 1, MaxDensity: 10, InverseArea: 1}
	h := on(9, 30, 60000, p)
	v := newView(t, []*world.Parcel{p}, h)

	for _, dm := range []DecisionMaker{
		NewStatistical(HouseholdMemory, MovingThreshold, CoreZone),
		NewSchelling(HouseholdMemory, SimilarityTolerance, SchellingThreshold),
	} {
		if _, err := dm.IsMoving(h, v); !errors.Is(err, ErrUnregistered) {
			t.Fatalf("%s: err = %v, want ErrUnregistered", dm.Name(), err)
		}
		dm.AddHousehold(h.ID)
		dm.DeleteHousehold(h.ID)
		if _, ok := dm.Memory(h.ID); ok {
			t.Fatalf("%s: memory survived DeleteHousehold", dm.Name())
		}
		if _, err := dm.Cumulated(h.ID); !errors.Is(err, ErrUnregistered) {
			t.Fatalf("%s: cumulated err = %v", dm.Name(), err)
		}
	}
}

func TestSchellingUnlikenessMonotone(t *testing.T) {
	home := &world.Parcel{ID: 1, MaxDensity: 10, InverseArea: 1}
	next := &world.Parcel{ID: 2, MaxDensity: 10, InverseArea: 1}
	rich := on(1, 60, 60000, home)
	s := NewSchelling(HouseholdMemory, SimilarityTolerance, SchellingThreshold)

	alone := newView(t, []*world.Parcel{home, next}, rich)
	if u, err := s.Unlikeness(rich, alone); err != nil || u != 0 {
		t.Fatalf("alone: unlikeness = %v, %v", u, err)
	}

	rich = on(1, 60, 60000, home)
	v := newView(t, []*world.Parcel{home, next},
		rich,
		on(2, 60, 58000, home),
		on(3, 60, 10000, next),
	)
	before, err := s.Unlikeness(rich, v)
	if err != nil {
		t.Fatalf("unlikeness: %v", err)
	}
	if before != 0.5 {
		t.Fatalf("unlikeness = %v, want 0.5", before)
	}

	if err := v.Admit(on(4, 60, 12000, next)); err != nil {
		t.Fatalf("admit: %v", err)
	}
	after, _ := s.Unlikeness(rich, v)
	if after < before {
		t.Fatalf("unlikeness fell from %v to %v with one more unlike neighbor", before, after)
	}

	s.AddHousehold(rich.ID)
	moves := 0
	for i := 0; i < 4; i++ {
		if m, _ := s.IsMoving(rich, v); m {
			moves++
		}
	}
	// 2/3 per step: 0.67, 1.33, 2.0, 2.0
	if moves != 2 {
		t.Fatalf("moved on %d of 4 steps, want 2", moves)
	}
}

func TestNewModel(t *testing.T) {
	cfg := DefaultConfig()
	dm, err := New(cfg)
	if err != nil || dm.Name() != ModelStatistical {
		t.Fatalf("default model = %v, %v", dm, err)
	}
	cfg.Model = ModelSchelling
	if dm, err := New(cfg); err != nil || dm.Name() != ModelSchelling {
		t.Fatalf("schelling model = %v, %v", dm, err)
	}
	cfg.Model = "gravity"
	if _, err := New(cfg); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("unknown model err = %v", err)
	}
}
