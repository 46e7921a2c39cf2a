// One simulation step: evaluate, relocate, redevelop, age.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nicolas-f/gdms-usm/internal/agents"
	"github.com/nicolas-f/gdms-usm/internal/selection"
	"github.com/nicolas-f/gdms-usm/internal/world"
)

// Step advances the simulation by one year. Phases run strictly in order:
//
//  1. every household, by ascending ID, records a dissatisfaction sample and
//     decides whether it moves;
//  2. movers, by ascending ID, are relocated to a selected non-full parcel;
//  3. every parcel updates its build type from its final density and its
//     neighbors' build types as they stood after phase 2;
//  4. every household ages one year.
//
// The step is then committed to the sink. Any failure that could leave the
// population inconsistent aborts the run; nothing from the failed step is
// committed.
func (s *Simulation) Step() (StepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitialized {
		return StepReport{}, fmt.Errorf("step in state %s: %w", s.state, ErrInvalidState)
	}

	start := time.Now()
	report := StepReport{Step: s.stepCount + 1, Year: s.year + 1}

	households := s.Population.Households()
	movers, err := s.evaluate(households)
	if err != nil {
		return report, s.abort(fmt.Errorf("evaluate: %w", err))
	}
	report.Evaluated = len(households)
	report.Movers = len(movers)

	report.Moved, report.Skipped, err = s.relocate(movers)
	if err != nil {
		return report, s.abort(fmt.Errorf("relocate: %w", err))
	}

	report.Upgraded = s.updateBuildTypes()
	s.ageHouseholds()

	s.stepCount++
	s.year++
	report.Population = s.Population.Len()

	if s.sink != nil {
		if err := s.sink.Commit(s.snapshot(report.Moved)); err != nil {
			return report, s.abort(fmt.Errorf("commit step %d: %w", s.stepCount, err))
		}
	}
	s.pending = nil

	s.stats.TotalMoves += report.Moved
	s.updateStats()
	report.Duration = time.Since(start)
	s.recent.Push(report)
	s.publish(report)

	slog.Info("step complete",
		"step", report.Step,
		"year", report.Year,
		"population", report.Population,
		"movers", report.Movers,
		"moved", report.Moved,
		"skipped", report.Skipped,
		"upgraded", report.Upgraded,
		"full_parcels", s.stats.FullParcels,
		"duration", report.Duration,
	)
	return report, nil
}

// evaluate asks the decision maker about every household and returns the
// movers in the order given.
func (s *Simulation) evaluate(households []*agents.Household) ([]*agents.Household, error) {
	moving := make([]bool, len(households))

	if s.workers <= 1 {
		for i, h := range households {
			m, err := s.decider.IsMoving(h, s.Population)
			if err != nil {
				return nil, err
			}
			moving[i] = m
		}
	} else {
		// Each household's memory is written by exactly one goroutine; the
		// population is only read.
		var g errgroup.Group
		g.SetLimit(s.workers)
		for i, h := range households {
			i, h := i, h
			g.Go(func() error {
				m, err := s.decider.IsMoving(h, s.Population)
				if err != nil {
					return err
				}
				moving[i] = m
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	var movers []*agents.Household
	for i, h := range households {
		if moving[i] {
			movers = append(movers, h)
		}
	}
	return movers, nil
}

// relocate moves each mover in turn. A mover with no destination stays put
// for this step. Only a relocation that fails without restoring the
// household's previous home is fatal.
func (s *Simulation) relocate(movers []*agents.Household) (moved, skipped int, err error) {
	for _, h := range movers {
		from := *h.ParcelID

		dest, err := s.selector.Select(h, s.Population.Vacancies(h.ParcelID))
		if err != nil {
			skipped++
			if errors.Is(err, selection.ErrNoCandidates) {
				slog.Debug("no destination for household", "household", h.ID, "parcel", from)
			} else {
				slog.Warn("parcel selection failed", "household", h.ID, "error", err)
			}
			continue
		}

		if err := s.Population.Relocate(h, dest); err != nil {
			if h.ParcelID == nil || *h.ParcelID != from {
				return moved, skipped, fmt.Errorf("household %d from parcel %d: %w", h.ID, from, err)
			}
			skipped++
			slog.Warn("relocation rolled back", "household", h.ID, "parcel", from, "target", dest.ID, "error", err)
			continue
		}

		moved++
		s.notifyMoved(h, from, dest.ID)
	}
	return moved, skipped, nil
}

// updateBuildTypes lets every parcel advance its build type. Neighbor build
// types are read from a snapshot taken before any parcel changes, so parcel
// order does not matter.
func (s *Simulation) updateBuildTypes() int {
	parcels := s.Population.Parcels()
	before := make(map[world.ParcelID]world.BuildType, len(parcels))
	for _, p := range parcels {
		before[p.ID] = p.BuildType
	}

	upgraded := 0
	for _, p := range parcels {
		neighbors := s.Population.NeighborsOf(p.ID)
		bts := make([]world.BuildType, len(neighbors))
		for i, n := range neighbors {
			bts[i] = before[n.ID]
		}
		if p.UpdateBuildType(s.thresholds, bts, s.influence) {
			upgraded++
		}
	}
	return upgraded
}
