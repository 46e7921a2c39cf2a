// Engine paces the step loop: one simulated year per interval, with pause,
// speed control and a stop that takes effect between steps.
package engine

import (
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// Engine drives a Simulation forward.
type Engine struct {
	Sim      *Simulation
	Interval time.Duration // Base step interval at speed 1
	MaxSteps uint64        // Stop after this many steps of this run (0 = unbounded)

	speed   atomic.Uint64 // float64 bits: 1.0 = normal, 0 = paused
	running atomic.Bool
	steps   atomic.Uint64
}

// NewEngine creates an engine with default settings.
func NewEngine(sim *Simulation) *Engine {
	e := &Engine{
		Sim:      sim,
		Interval: time.Second,
	}
	e.SetSpeed(1.0)
	return e
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// SetSpeed changes the speed multiplier; 0 pauses, negative values count as 0.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 || math.IsNaN(v) {
		v = 0
	}
	e.speed.Store(math.Float64bits(v))
}

// Running reports whether Run is looping.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Steps returns the number of steps run by this engine.
func (e *Engine) Steps() uint64 {
	return e.steps.Load()
}

// Run steps the simulation until Stop is called, MaxSteps is reached or a
// step fails. It returns the step error, if any. The last committed step is
// always a consistent recovery point.
func (e *Engine) Run() error {
	e.running.Store(true)
	defer e.running.Store(false)
	slog.Info("simulation engine started", "step", e.Sim.StepCount(), "speed", e.Speed())

	for e.running.Load() {
		speed := e.Speed()
		if speed <= 0 {
			// Paused; sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		if _, err := e.Sim.Step(); err != nil {
			slog.Error("simulation engine stopped on error", "step", e.Sim.StepCount(), "error", err)
			return err
		}
		if n := e.steps.Add(1); e.MaxSteps > 0 && n >= e.MaxSteps {
			break
		}

		// Sleep for the remainder of the interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "step", e.Sim.StepCount())
	return nil
}

// Stop halts the loop after the step in progress.
func (e *Engine) Stop() {
	e.running.Store(false)
}
