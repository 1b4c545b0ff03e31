package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Phase identifies one pass of the simulation step.
type Phase int

// Step phases, in pipeline order.
const (
	PhaseBuildIndex Phase = iota
	PhaseDensity
	PhaseForces
	PhaseIntegrate

	NumPhases = int(PhaseIntegrate) + 1
)

// Phases lists every phase in pipeline order.
var Phases = [NumPhases]Phase{PhaseBuildIndex, PhaseDensity, PhaseForces, PhaseIntegrate}

var phaseNames = [NumPhases]string{"build_index", "density", "forces", "integrate"}

func (p Phase) String() string {
	if p < 0 || int(p) >= NumPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// stepSample is the timing of one Step, split by phase.
type stepSample struct {
	total  time.Duration
	phases [NumPhases]time.Duration
}

// PerfCollector keeps per-phase step timings over a rolling window.
// It is driven from the goroutine calling Step and is not safe for concurrent use.
type PerfCollector struct {
	ring  []stepSample
	next  int
	count int

	current    stepSample
	stepStart  time.Time
	phaseStart time.Time
	phase      Phase
	inPhase    bool

	// Host frame timing
	lastFrame time.Time
	frame     time.Duration
}

// NewPerfCollector creates a collector averaging over the last window steps.
func NewPerfCollector(window int) *PerfCollector {
	if window < 1 {
		window = 60
	}
	return &PerfCollector{ring: make([]stepSample, window)}
}

// BeginStep starts timing a step.
func (p *PerfCollector) BeginStep() {
	p.current = stepSample{}
	p.inPhase = false
	p.stepStart = time.Now()
}

// EnterPhase closes the running phase, if any, and starts timing ph.
func (p *PerfCollector) EnterPhase(ph Phase) {
	now := time.Now()
	p.closePhase(now)
	p.phase = ph
	p.phaseStart = now
	p.inPhase = true
}

// EndStep closes the running phase and records the step in the window.
func (p *PerfCollector) EndStep() {
	now := time.Now()
	p.closePhase(now)
	p.current.total = now.Sub(p.stepStart)

	p.ring[p.next] = p.current
	p.next = (p.next + 1) % len(p.ring)
	if p.count < len(p.ring) {
		p.count++
	}
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase && int(p.phase) < NumPhases && p.phase >= 0 {
		p.current.phases[p.phase] += now.Sub(p.phaseStart)
	}
	p.inPhase = false
}

// RecordFrame records wall time between host frames, including work outside Step.
func (p *PerfCollector) RecordFrame() {
	now := time.Now()
	if !p.lastFrame.IsZero() {
		p.frame = now.Sub(p.lastFrame)
	}
	p.lastFrame = now
}

// PerfStats aggregates the steps currently in the window.
type PerfStats struct {
	Steps   int
	AvgStep time.Duration
	MinStep time.Duration
	MaxStep time.Duration

	PhaseAvg [NumPhases]time.Duration
	PhasePct [NumPhases]float64 // share of the average step

	StepsPerSecond float64

	// Host frame timing
	FrameDuration time.Duration
	FPS           float64
}

// Stats aggregates the current window.
func (p *PerfCollector) Stats() PerfStats {
	st := PerfStats{Steps: p.count, FrameDuration: p.frame}
	if p.frame > 0 {
		st.FPS = float64(time.Second) / float64(p.frame)
	}
	if p.count == 0 {
		return st
	}

	var total time.Duration
	var phaseSum [NumPhases]time.Duration
	for i, s := range p.ring[:p.count] {
		total += s.total
		if i == 0 || s.total < st.MinStep {
			st.MinStep = s.total
		}
		if s.total > st.MaxStep {
			st.MaxStep = s.total
		}
		for ph, d := range s.phases {
			phaseSum[ph] += d
		}
	}

	n := time.Duration(p.count)
	st.AvgStep = total / n
	for ph := range phaseSum {
		st.PhaseAvg[ph] = phaseSum[ph] / n
		if st.AvgStep > 0 {
			st.PhasePct[ph] = 100 * float64(st.PhaseAvg[ph]) / float64(st.AvgStep)
		}
	}
	if st.AvgStep > 0 {
		st.StepsPerSecond = float64(time.Second) / float64(st.AvgStep)
	}
	return st
}

func (s PerfStats) attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.Int64("avg_step_us", s.AvgStep.Microseconds()),
		slog.Int64("min_step_us", s.MinStep.Microseconds()),
		slog.Int64("max_step_us", s.MaxStep.Microseconds()),
		slog.Float64("steps_per_sec", s.StepsPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for _, ph := range Phases {
		attrs = append(attrs, slog.Float64(ph.String()+"_pct", s.PhasePct[ph]))
	}
	return attrs
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	return slog.GroupValue(s.attrs()...)
}

// LogStats logs the window summary at Info.
func (s PerfStats) LogStats() {
	slog.LogAttrs(context.Background(), slog.LevelInfo, "perf", s.attrs()...)
}

// PerfStatsCSV is one perf.csv row.
type PerfStatsCSV struct {
	WindowEnd     int64   `csv:"window_end"`
	AvgStepUS     int64   `csv:"avg_step_us"`
	MinStepUS     int64   `csv:"min_step_us"`
	MaxStepUS     int64   `csv:"max_step_us"`
	StepsPerSec   float64 `csv:"steps_per_sec"`
	FPS           float64 `csv:"fps"`
	BuildIndexPct float64 `csv:"build_index_pct"`
	DensityPct    float64 `csv:"density_pct"`
	ForcesPct     float64 `csv:"forces_pct"`
	IntegratePct  float64 `csv:"integrate_pct"`
}

// ToCSV flattens the stats into a row ending at frame windowEnd.
func (s PerfStats) ToCSV(windowEnd int64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:     windowEnd,
		AvgStepUS:     s.AvgStep.Microseconds(),
		MinStepUS:     s.MinStep.Microseconds(),
		MaxStepUS:     s.MaxStep.Microseconds(),
		StepsPerSec:   s.StepsPerSecond,
		FPS:           s.FPS,
		BuildIndexPct: s.PhasePct[PhaseBuildIndex],
		DensityPct:    s.PhasePct[PhaseDensity],
		ForcesPct:     s.PhasePct[PhaseForces],
		IntegratePct:  s.PhasePct[PhaseIntegrate],
	}
}
