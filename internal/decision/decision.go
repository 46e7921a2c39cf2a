// Package decision decides, once per step, whether each household relocates.
// Each model owns the dissatisfaction computation and the per-household
// dissatisfaction memory it accumulates into.
package decision

import (
	"errors"
	"fmt"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

var (
	ErrUnregistered = errors.New("household not registered with decision maker")
	ErrUnknownModel = errors.New("unknown decision model")
)

// Model names accepted by New.
const (
	ModelStatistical = "statistical"
	ModelSchelling   = "schelling"
)

// View is the read-only population state a decision needs.
type View interface {
	Housing(h *agents.Household) (*world.Parcel, error)
	ResidentsOf(p *world.Parcel) []*agents.Household
	NeighborsOf(id world.ParcelID) []*world.Parcel
}

// DecisionMaker answers "is this household moving this step?".
// IsMoving records one dissatisfaction sample per call. Calls for distinct
// households may run concurrently; calls for the same household may not.
type DecisionMaker interface {
	Name() string
	IsMoving(h *agents.Household, v View) (bool, error)
	AddHousehold(id agents.HouseholdID)
	DeleteHousehold(id agents.HouseholdID)
	Memory(id agents.HouseholdID) ([]float64, bool)
	Cumulated(id agents.HouseholdID) (float64, error)
}

// Config selects and parameterises a model.
type Config struct {
	Model               string  `yaml:"model"`
	Memory              int     `yaml:"memory"`
	MovingThreshold     float64 `yaml:"moving_threshold"`
	CoreZone            int     `yaml:"core_zone"`
	SimilarityTolerance float64 `yaml:"similarity_tolerance"`
	SchellingThreshold  float64 `yaml:"schelling_threshold"`
}

// DefaultConfig returns the statistical model with its calibrated constants.
func DefaultConfig() Config {
	return Config{
		Model:               ModelStatistical,
		Memory:              HouseholdMemory,
		MovingThreshold:     MovingThreshold,
		CoreZone:            CoreZone,
		SimilarityTolerance: SimilarityTolerance,
		SchellingThreshold:  SchellingThreshold,
	}
}

// New builds the configured model.
func New(cfg Config) (DecisionMaker, error) {
	switch cfg.Model {
	case ModelStatistical, "":
		return NewStatistical(cfg.Memory, cfg.MovingThreshold, cfg.CoreZone), nil
	case ModelSchelling:
		return NewSchelling(cfg.Memory, cfg.SimilarityTolerance, cfg.SchellingThreshold), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, cfg.Model)
	}
}

// memories holds one bounded dissatisfaction history per registered household.
type memories struct {
	capacity int
	byID     map[agents.HouseholdID]*agents.History[float64]
}

func newMemories(capacity int) memories {
	return memories{
		capacity: capacity,
		byID:     make(map[agents.HouseholdID]*agents.History[float64]),
	}
}

// AddHousehold starts an empty history for id, replacing any previous one.
func (m *memories) AddHousehold(id agents.HouseholdID) {
	m.byID[id] = agents.NewHistory[float64](m.capacity)
}

// DeleteHousehold forgets id.
func (m *memories) DeleteHousehold(id agents.HouseholdID) {
	delete(m.byID, id)
}

// Memory returns id's samples, oldest first.
func (m *memories) Memory(id agents.HouseholdID) ([]float64, bool) {
	h, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return h.Values(), true
}

// Cumulated sums id's current samples.
func (m *memories) Cumulated(id agents.HouseholdID) (float64, error) {
	h, ok := m.byID[id]
	if !ok {
		return 0, fmt.Errorf("household %d: %w", id, ErrUnregistered)
	}
	return agents.Sum(h), nil
}

func (m *memories) history(id agents.HouseholdID) (*agents.History[float64], error) {
	h, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("household %d: %w", id, ErrUnregistered)
	}
	return h, nil
}
