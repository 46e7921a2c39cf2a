// Simulation ties households, parcels and the decision strategies together
// and advances them one year per step.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/decision"
	"github.com/nicolas-f/gdms-usm/internal/selection"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

var (
	ErrInvalidState = errors.New("operation not allowed in current simulation state")
	ErrAborted      = errors.New("simulation aborted")
	ErrNoStrategy   = errors.New("decision maker and parcel selector are required")
)

// State is the simulation lifecycle stage.
type State uint8

const (
	StateUninitialized State = iota
	StateInitialized         // Ready to step; stays here between steps
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// DefaultRecentReports is how many step reports a simulation keeps in memory.
const DefaultRecentReports = 100

// Options configures a Simulation.
type Options struct {
	Decider           decision.DecisionMaker
	Selector          selection.ParcelSelector
	Thresholds        world.Thresholds
	NeighborInfluence float64 // Upgrade potential at which neighbors pull development
	Workers           int     // Parallel phase-1 evaluators; ≤1 evaluates sequentially
	Sink              Sink    // Optional persistence
	RecentReports     int
}

// Simulation holds the complete model state.
type Simulation struct {
	mu sync.RWMutex

	RunID      uuid.UUID
	Population *agents.Population

	decider    decision.DecisionMaker
	selector   selection.ParcelSelector
	thresholds world.Thresholds
	influence  float64
	workers    int
	sink       Sink

	state     State
	stepCount uint64
	year      int
	abortErr  error

	listeners []Listener
	pending   []HouseholdRecord // Joined since the last commit
	recent    *agents.History[StepReport]
	stats     SimStats

	subMu      sync.Mutex
	subs       map[int]chan StepReport
	nextSub    int
	subsClosed bool // Run ended; new subscriptions start closed
}

// NewSimulation validates the options and returns an uninitialized simulation.
func NewSimulation(opts Options) (*Simulation, error) {
	if opts.Decider == nil || opts.Selector == nil {
		return nil, ErrNoStrategy
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, err
	}
	recent := opts.RecentReports
	if recent <= 0 {
		recent = DefaultRecentReports
	}
	return &Simulation{
		RunID:      uuid.New(),
		decider:    opts.Decider,
		selector:   opts.Selector,
		thresholds: opts.Thresholds,
		influence:  opts.NeighborInfluence,
		workers:    opts.Workers,
		sink:       opts.Sink,
		recent:     agents.NewHistory[StepReport](recent),
		subs:       make(map[int]chan StepReport),
	}, nil
}

// AddListener registers a population change listener.
func (s *Simulation) AddListener(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Initialize loads the census, moves every household into its assigned
// parcel, registers it with the decision maker and commits the starting state.
func (s *Simulation) Initialize(src PopulationSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return fmt.Errorf("initialize in state %s: %w", s.state, ErrInvalidState)
	}

	census, err := src.LoadCensus()
	if err != nil {
		return fmt.Errorf("load census: %w", err)
	}
	pop, err := agents.NewPopulation(census.Parcels, census.Neighbors)
	if err != nil {
		return fmt.Errorf("index parcels: %w", err)
	}
	for _, h := range census.Households {
		if !h.Housed() {
			return fmt.Errorf("household %d: %w", h.ID, agents.ErrNoParcel)
		}
		if err := pop.Admit(h); err != nil {
			return fmt.Errorf("admit household: %w", err)
		}
	}

	s.Population = pop
	s.stepCount = census.Step
	s.year = census.Year
	s.pending = s.pending[:0]
	for _, h := range pop.Households() {
		s.decider.AddHousehold(h.ID)
		s.pending = append(s.pending, householdRecord(h))
		s.notifyAdded(h)
	}

	if s.sink != nil {
		parcels := make([]ParcelRecord, 0, len(census.Parcels))
		for _, p := range pop.Parcels() {
			parcels = append(parcels, parcelRecord(p))
		}
		run := RunRecord{
			ID:        s.RunID.String(),
			Decision:  s.decider.Name(),
			Selection: s.selector.Name(),
			StartedAt: time.Now().UTC(),
		}
		if err := s.sink.Begin(run, parcels); err != nil {
			return fmt.Errorf("begin run: %w", err)
		}
		if err := s.sink.Commit(s.snapshot(0)); err != nil {
			return fmt.Errorf("commit initial state: %w", err)
		}
	}
	s.pending = nil

	s.state = StateInitialized
	s.updateStats()

	slog.Info("simulation initialized",
		"run", s.RunID.String(),
		"households", pop.Len(),
		"parcels", len(census.Parcels),
		"step", s.stepCount,
		"year", s.year,
		"decision", s.decider.Name(),
		"selection", s.selector.Name(),
	)
	return nil
}

// Terminate ends the run. Further steps are refused.
func (s *Simulation) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateTerminated {
		s.state = StateTerminated
		slog.Info("simulation terminated", "step", s.stepCount, "year", s.year)
	}
	s.closeSubscribers()
}

// abort terminates the run after a failure that left or could leave the
// population inconsistent.
func (s *Simulation) abort(err error) error {
	s.state = StateTerminated
	s.abortErr = err
	slog.Error("simulation aborted", "step", s.stepCount+1, "error", err)
	s.closeSubscribers()
	return fmt.Errorf("%w: %w", ErrAborted, err)
}

// State returns the lifecycle stage.
func (s *Simulation) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the cause of an abort, if any.
func (s *Simulation) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.abortErr
}

// StepCount returns the number of the last completed step.
func (s *Simulation) StepCount() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stepCount
}

// Year returns the calendar year of the last completed step.
func (s *Simulation) Year() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.year
}

// Stats returns the aggregate statistics of the last completed step.
func (s *Simulation) Stats() SimStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// LastReport returns the report of the most recent step, if any.
func (s *Simulation) LastReport() (StepReport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recent.Last()
}

// RecentReports returns the retained step reports, oldest first.
func (s *Simulation) RecentReports() []StepReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recent.Values()
}

// Decider returns the decision maker in use.
func (s *Simulation) Decider() decision.DecisionMaker {
	return s.decider
}

// Thresholds returns the build type density ladder.
func (s *Simulation) Thresholds() world.Thresholds {
	return s.thresholds
}

// NeighborInfluence returns the upgrade potential at which neighbors pull
// development.
func (s *Simulation) NeighborInfluence() float64 {
	return s.influence
}

// Read runs fn with shared access to the population. fn must not mutate it.
func (s *Simulation) Read(fn func(pop *agents.Population)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.Population)
}
