package pointer

import (
	"math"
	"sort"
	"time"

	"github.com/probelab-dev/uiscout/pkg/logger"
)

// GainSample records the effective actuator gain observed over one
// completed move: actual pixel displacement divided by total commanded raw
// units, per axis. Samples are append-only; the learner consumes rolling
// windows and never mutates them.
type GainSample struct {
	GainX     float64
	GainY     float64
	Distance  float64 // total travelled distance in pixels
	Attempts  int
	Timestamp time.Time
}

// gainLearner maintains the per-axis gain estimate and its sample history.
type gainLearner struct {
	gainX   float64
	gainY   float64
	history []GainSample

	windowSize int
	minSamples int
	rate       float64
	maxStdDev  float64
}

func newGainLearner(initialX, initialY float64, windowSize, minSamples int, rate, maxStdDev float64) *gainLearner {
	return &gainLearner{
		gainX:      initialX,
		gainY:      initialY,
		windowSize: windowSize,
		minSamples: minSamples,
		rate:       rate,
		maxStdDev:  maxStdDev,
	}
}

// record appends a sample and, given enough history, blends the estimate
// toward the median of the most recent window. Noisy windows (std dev above
// the consistency threshold on either axis) are discarded without updating.
func (g *gainLearner) record(s GainSample) {
	g.history = append(g.history, s)
	if len(g.history) < g.minSamples {
		return
	}

	window := g.history
	if len(window) > g.windowSize {
		window = window[len(window)-g.windowSize:]
	}

	xs := make([]float64, len(window))
	ys := make([]float64, len(window))
	for i, smp := range window {
		xs[i] = smp.GainX
		ys[i] = smp.GainY
	}

	medX, stdX := medianStd(xs)
	medY, stdY := medianStd(ys)

	if stdX >= g.maxStdDev || stdY >= g.maxStdDev {
		logger.Debug("pointer: gain window too noisy (std x=%.3f y=%.3f), skipping update", stdX, stdY)
		return
	}

	g.gainX = g.gainX*(1-g.rate) + medX*g.rate
	g.gainY = g.gainY*(1-g.rate) + medY*g.rate
	logger.Info("pointer: updated gain estimate to (%.3f, %.3f) (std x=%.3f y=%.3f)",
		g.gainX, g.gainY, stdX, stdY)
}

// set replaces the estimate outright, used by calibration.
func (g *gainLearner) set(x, y float64) {
	if x > 0 {
		g.gainX = x
	}
	if y > 0 {
		g.gainY = y
	}
}

func medianStd(vals []float64) (median, std float64) {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	median = sorted[len(sorted)/2]

	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	var variance float64
	for _, v := range vals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(vals))
	return median, math.Sqrt(variance)
}
