// Package engine provides the tick-based simulation loop, the vehicles,
// and the per-stop loading cycle that moves cargo between station and
// vehicle ledgers.
package engine

import (
	"log/slog"
	"time"
)

// Tick cadence of the cargo systems.
const (
	// TicksPerAging is how often waiting and riding cargo gains one
	// period in transit.
	TicksPerAging = 120
	// TicksPerFlowDecay is how often flow tables take an invalidation
	// pass; tables with no fresh data for 31 passes are deleted.
	TicksPerFlowDecay = 960
	// TicksPerSnapshot is how often a persistence snapshot is offered.
	TicksPerSnapshot = 7200
)

// Engine drives the simulation forward.
type Engine struct {
	Tick     uint64        // current tick counter, monotonic
	Speed    float64       // multiplier: 1.0 = real-time, 0 = paused
	Interval time.Duration // base tick interval when pacing
	Running  bool

	// Callbacks for each tick layer, populated during setup.
	OnTick      func(tick uint64) // every tick: vehicle movement and stops
	OnAging     func(tick uint64) // cargo aging layer
	OnFlowDecay func(tick uint64) // flow table invalidation layer
	OnSnapshot  func(tick uint64) // persistence layer
}

// NewEngine creates a simulation engine with default pacing.
func NewEngine() *Engine {
	return &Engine{
		Speed:    1.0,
		Interval: 50 * time.Millisecond,
	}
}

// Run starts the paced simulation loop. Blocks until Stop is called.
func (e *Engine) Run() {
	e.Running = true
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed)

	for e.Running {
		if e.Speed <= 0 {
			// Paused.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()
		e.Step()

		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / e.Speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// RunTicks advances the simulation n ticks as fast as possible.
func (e *Engine) RunTicks(n uint64) {
	e.Running = true
	for i := uint64(0); i < n && e.Running; i++ {
		e.Step()
	}
	e.Running = false
}

// Stop halts the simulation loop.
func (e *Engine) Stop() {
	e.Running = false
}

// Step advances the simulation by one tick.
func (e *Engine) Step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}
	if e.Tick%TicksPerAging == 0 && e.OnAging != nil {
		e.OnAging(e.Tick)
	}
	if e.Tick%TicksPerFlowDecay == 0 && e.OnFlowDecay != nil {
		e.OnFlowDecay(e.Tick)
	}
	if e.Tick%TicksPerSnapshot == 0 && e.OnSnapshot != nil {
		e.OnSnapshot(e.Tick)
	}
}
