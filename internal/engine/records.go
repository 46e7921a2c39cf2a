// Population sources and persistence sinks: the record streams exchanged
// with the outside world.
package engine

import (
	"time"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

// Census is a population ready to simulate: parcels in import order,
// households carrying their parcel assignment, and the adjacency oracle.
type Census struct {
	Parcels    []*world.Parcel
	Households []*agents.Household
	Neighbors  world.NeighborProvider
	Step       uint64 // Last committed step (0 for a fresh population)
	Year       int    // Calendar year at Step
}

// PopulationSource supplies the initial or restored census.
type PopulationSource interface {
	LoadCensus() (*Census, error)
}

// RunRecord describes one simulation run.
type RunRecord struct {
	ID        string    `db:"id" json:"id"`
	Decision  string    `db:"decision_model" json:"decision_model"`
	Selection string    `db:"selection_model" json:"selection_model"`
	StartedAt time.Time `db:"started_at" json:"started_at"`
}

// HouseholdRecord holds a household's static attributes.
type HouseholdRecord struct {
	ID        agents.HouseholdID `db:"id" json:"id"`
	MaxWealth int                `db:"max_wealth" json:"max_wealth"`
}

// HouseholdState is a household at the end of a step.
type HouseholdState struct {
	Step        uint64             `db:"step" json:"step"`
	HouseholdID agents.HouseholdID `db:"household_id" json:"household_id"`
	Age         int                `db:"age" json:"age"`
	Wealth      int                `db:"wealth" json:"wealth"`
	ParcelID    world.ParcelID     `db:"parcel_id" json:"parcel_id"`
}

// ParcelRecord holds a parcel's static attributes.
type ParcelRecord struct {
	ID                    world.ParcelID `db:"id" json:"id"`
	Q                     int            `db:"q" json:"q"`
	R                     int            `db:"r" json:"r"`
	BaseDensity           float64        `db:"base_density" json:"base_density"`
	MaxDensity            float64        `db:"max_density" json:"max_density"`
	InverseArea           float64        `db:"inverse_area" json:"inverse_area"`
	AmenitiesIndex        int            `db:"amenities_index" json:"amenities_index"`
	ConstructibilityIndex int            `db:"constructibility_index" json:"constructibility_index"`
	ZoneID                int            `db:"zone_id" json:"zone_id"`
	Zoning                string         `db:"zoning" json:"zoning"`
	Footprint             string         `db:"footprint" json:"footprint"` // WKT, empty when unknown
}

// ParcelState is a parcel at the end of a step.
type ParcelState struct {
	Step       uint64          `db:"step" json:"step"`
	ParcelID   world.ParcelID  `db:"parcel_id" json:"parcel_id"`
	Density    float64         `db:"density" json:"density"`
	BuildType  world.BuildType `db:"build_type" json:"build_type"`
	Population int             `db:"population" json:"population"`
}

// StepRecord is the step counter record.
type StepRecord struct {
	Step       uint64 `db:"step" json:"step"`
	Year       int    `db:"year" json:"year"`
	Population int    `db:"population" json:"population"`
	Moves      int    `db:"moves" json:"moves"`
}

// Snapshot is everything committed for one step. NewHouseholds lists the
// static records of households that joined since the previous commit.
type Snapshot struct {
	Step          StepRecord
	NewHouseholds []HouseholdRecord
	Households    []HouseholdState
	Parcels       []ParcelState
}

// Sink persists runs. Commit must store a snapshot all-or-nothing.
type Sink interface {
	Begin(run RunRecord, parcels []ParcelRecord) error
	Commit(snap *Snapshot) error
}

func householdRecord(h *agents.Household) HouseholdRecord {
	return HouseholdRecord{ID: h.ID, MaxWealth: h.MaxWealth}
}

func parcelRecord(p *world.Parcel) ParcelRecord {
	return ParcelRecord{
		ID:                    p.ID,
		Q:                     p.Coord.Q,
		R:                     p.Coord.R,
		BaseDensity:           p.BaseDensity,
		MaxDensity:            p.MaxDensity,
		InverseArea:           p.InverseArea,
		AmenitiesIndex:        p.AmenitiesIndex,
		ConstructibilityIndex: p.ConstructibilityIndex,
		ZoneID:                p.ZoneID,
		Zoning:                p.Zoning,
		Footprint:             world.FootprintWKT(p),
	}
}

// snapshot captures the population at the current step.
func (s *Simulation) snapshot(moves int) *Snapshot {
	snap := &Snapshot{
		Step: StepRecord{
			Step:       s.stepCount,
			Year:       s.year,
			Population: s.Population.Len(),
			Moves:      moves,
		},
		NewHouseholds: s.pending,
	}
	for _, h := range s.Population.Households() {
		st := HouseholdState{
			Step:        s.stepCount,
			HouseholdID: h.ID,
			Age:         h.Age,
			Wealth:      h.Wealth(),
		}
		if h.ParcelID != nil {
			st.ParcelID = *h.ParcelID
		}
		snap.Households = append(snap.Households, st)
	}
	for _, p := range s.Population.Parcels() {
		snap.Parcels = append(snap.Parcels, ParcelState{
			Step:       s.stepCount,
			ParcelID:   p.ID,
			Density:    p.Density(),
			BuildType:  p.BuildType,
			Population: p.Population(),
		})
	}
	return snap
}

// GeneratedSource builds a synthetic census from a noise-generated parcel
// field and a spawner.
type GeneratedSource struct {
	Gen       world.GenConfig
	Fill      float64 // Share of each parcel's capacity to occupy
	Spawner   *agents.Spawner
	StartYear int
}

// LoadCensus generates the parcel field and its households.
func (g *GeneratedSource) LoadCensus() (*Census, error) {
	m, parcels := world.Generate(g.Gen)
	spawner := g.Spawner
	if spawner == nil {
		spawner = agents.NewSpawner(g.Gen.Seed)
	}
	return &Census{
		Parcels:    parcels,
		Households: spawner.Populate(parcels, g.Fill),
		Neighbors:  m,
		Year:       g.StartYear,
	}, nil
}
