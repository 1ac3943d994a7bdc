// Package pointer implements the closed-loop positioning controller: it
// converges the observed pointer position onto a target through an actuator
// with unknown, drifting, non-linear gain, learning the per-axis gain from
// completed moves.
package pointer

import (
	"fmt"
	"math"
	"time"

	"github.com/probelab-dev/uiscout/pkg/config"
	"github.com/probelab-dev/uiscout/pkg/core"
	"github.com/probelab-dev/uiscout/pkg/logger"
)

// Options tunes the controller. See config.Pointer for the meaning of each
// knob; OptionsFromConfig carries them over.
type Options struct {
	Tolerance   int
	MaxAttempts int

	InitialGainX float64
	InitialGainY float64

	LearningSamples      int
	LearningRate         float64
	MinSamples           int
	ConsistencyStdDevMax float64

	NoMovementPx  int
	MaxNoMovement int
	MaxLostCount  int

	MaxUnits   int
	DitherStep int

	ScreenWidth  int
	ScreenHeight int
}

// OptionsFromConfig builds controller options from the run configuration.
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		Tolerance:            c.Pointer.Tolerance,
		MaxAttempts:          c.Pointer.MaxAttempts,
		InitialGainX:         c.Pointer.InitialGainX,
		InitialGainY:         c.Pointer.InitialGainY,
		LearningSamples:      c.Pointer.LearningSamples,
		LearningRate:         c.Pointer.LearningRate,
		MinSamples:           c.Pointer.MinSamples,
		ConsistencyStdDevMax: c.Pointer.ConsistencyStdDevMax,
		NoMovementPx:         c.Pointer.NoMovementPx,
		MaxNoMovement:        c.Pointer.MaxNoMovement,
		MaxLostCount:         c.Pointer.MaxLostCount,
		MaxUnits:             c.Actuator.MaxUnits,
		DitherStep:           c.Actuator.DitherStep,
		ScreenWidth:          c.Screen.Width,
		ScreenHeight:         c.Screen.Height,
	}
}

// Controller drives the pointer. It owns its gain history and stuck
// counter; the exploration engine resets the stuck counter after handling a
// dead element.
type Controller struct {
	opts Options

	act        core.Actuator
	capture    core.FrameCapture
	locator    core.PointerLocator
	credential core.CredentialClassifier

	gain       *gainLearner
	ditherSign int
	noMovement int // consecutive below-threshold displacements
}

// New creates a controller over the given capabilities.
func New(opts Options, act core.Actuator, capture core.FrameCapture,
	locator core.PointerLocator, credential core.CredentialClassifier) *Controller {
	return &Controller{
		opts:       opts,
		act:        act,
		capture:    capture,
		locator:    locator,
		credential: credential,
		gain: newGainLearner(opts.InitialGainX, opts.InitialGainY,
			opts.LearningSamples, opts.MinSamples,
			opts.LearningRate, opts.ConsistencyStdDevMax),
		ditherSign: 1,
	}
}

// Gain returns the current per-axis gain estimate.
func (c *Controller) Gain() (x, y float64) {
	return c.gain.gainX, c.gain.gainY
}

// NoMovementCount returns the consecutive no-movement counter.
func (c *Controller) NoMovementCount() int {
	return c.noMovement
}

// ResetNoMovement clears the stuck counter. Called by the engine after a
// stuck element has been blacklisted.
func (c *Controller) ResetNoMovement() {
	c.noMovement = 0
}

// Locate captures one fresh frame and reports the pointer position.
func (c *Controller) Locate() (core.Point, bool, error) {
	frame, err := c.capture.CaptureFrame()
	if err != nil {
		return core.Point{}, false, fmt.Errorf("capture frame: %w", err)
	}
	return c.locator.Locate(frame)
}

// observe captures a frame and locates the pointer, keeping the frame for
// the credential check on a miss.
func (c *Controller) observe() (pos core.Point, found bool, frame *core.Frame, err error) {
	frame, err = c.capture.CaptureFrame()
	if err != nil {
		return core.Point{}, false, nil, err
	}
	pos, found, err = c.locator.Locate(frame)
	return pos, found, frame, err
}

// isBlocked checks the frame for a credential prompt. Classifier errors are
// treated as "not a prompt": losing the pointer already has its own
// recovery path.
func (c *Controller) isBlocked(frame *core.Frame) bool {
	if frame == nil {
		return false
	}
	blocked, err := c.credential.IsCredentialPrompt(frame)
	if err != nil {
		logger.Error("pointer: credential check failed: %v", err)
		return false
	}
	if blocked {
		logger.Warn("pointer: credential prompt detected")
	}
	return blocked
}

// dither issues the antagonistic nudge that keeps the actuator responsive,
// alternating sign each call.
func (c *Controller) dither() {
	step := c.opts.DitherStep * c.ditherSign
	for i := 0; i < 2; i++ {
		if err := c.act.MoveRelative(step, 0); err != nil {
			logger.Warn("pointer: dither nudge failed: %v", err)
			return
		}
	}
	c.ditherSign = -c.ditherSign
}

// MoveTo converges the pointer onto the target within the tolerance.
// A tolerance <= 0 uses the configured default.
func (c *Controller) MoveTo(targetX, targetY, tolerance int) *core.MoveResult {
	if tolerance <= 0 {
		tolerance = c.opts.Tolerance
	}

	c.dither()

	pos, found, frame, err := c.observe()
	if err != nil || !found {
		if c.isBlocked(frame) {
			return &core.MoveResult{Status: core.MoveBlocked, Err: core.ErrCredentialPrompt}
		}
		if !c.recover() {
			return &core.MoveResult{Status: core.MoveFailed, Err: core.ErrPointerNotFound.WithCause(err)}
		}
		pos, found, frame, err = c.observe()
		if err != nil || !found {
			if c.isBlocked(frame) {
				return &core.MoveResult{Status: core.MoveBlocked, Err: core.ErrCredentialPrompt}
			}
			return &core.MoveResult{Status: core.MoveFailed, Err: core.ErrPointerNotFound.WithCause(err)}
		}
	}

	initial := pos
	logger.Debug("pointer: moving from (%d, %d) to (%d, %d)", pos.X, pos.Y, targetX, targetY)

	gainX, gainY := c.gain.gainX, c.gain.gainY
	deltaX := float64(targetX - pos.X)
	deltaY := float64(targetY - pos.Y)

	stepX := stepFor(deltaX, gainX)
	stepY := stepFor(deltaY, gainY)
	dirX := sign(deltaX)
	dirY := sign(deltaY)

	var totalCmdX, totalCmdY float64
	attempts := 0
	lost := 0

	for math.Abs(deltaX) > float64(tolerance) || math.Abs(deltaY) > float64(tolerance) {
		cmdX := stepX * float64(dirX)
		cmdY := stepY * float64(dirY)
		totalCmdX += cmdX
		totalCmdY += cmdY

		if err := c.act.MoveRelative(int(cmdX), int(cmdY)); err != nil {
			return &core.MoveResult{
				Status:        core.MoveFailed,
				FinalX:        pos.X,
				FinalY:        pos.Y,
				PositionKnown: true,
				Attempts:      attempts,
				Err:           err,
			}
		}

		newPos, found, frame, err := c.observe()
		if err != nil || !found {
			if c.isBlocked(frame) {
				return &core.MoveResult{Status: core.MoveBlocked, Attempts: attempts, Err: core.ErrCredentialPrompt}
			}
			lost++
			logger.Warn("pointer: lost during move (count %d)", lost)
			if lost >= c.opts.MaxLostCount {
				return &core.MoveResult{
					Status:   core.MoveFailed,
					Attempts: attempts,
					Err:      core.ErrPointerNotFound.WithMessage(fmt.Sprintf("pointer lost %d times", lost)),
				}
			}
			if !c.recover() {
				continue
			}
			newPos, found, frame, err = c.observe()
			if err != nil || !found {
				if c.isBlocked(frame) {
					return &core.MoveResult{Status: core.MoveBlocked, Attempts: attempts, Err: core.ErrCredentialPrompt}
				}
				continue
			}
		} else {
			lost = 0
		}

		prev := pos
		pos = newPos

		moved := math.Hypot(float64(pos.X-prev.X), float64(pos.Y-prev.Y))
		if moved < float64(c.opts.NoMovementPx) {
			c.noMovement++
			logger.Warn("pointer: no movement (%.1fpx, count %d)", moved, c.noMovement)

			if c.noMovement >= 2 && c.noMovement < c.opts.MaxNoMovement {
				// Slam recovery can unstick a pointer caught on an edge.
				if c.recover() {
					c.noMovement = 0
					if recovered, ok, _, _ := c.observe(); ok {
						pos = recovered
					}
				}
			}
			if c.noMovement >= c.opts.MaxNoMovement {
				return &core.MoveResult{
					Status:        core.MoveStuck,
					FinalX:        pos.X,
					FinalY:        pos.Y,
					PositionKnown: true,
					Attempts:      attempts,
					Err:           core.ErrPointerStuck,
				}
			}
		} else {
			c.noMovement = 0
		}

		prevDeltaX, prevDeltaY := deltaX, deltaY
		deltaX = float64(targetX - pos.X)
		deltaY = float64(targetY - pos.Y)

		stepX, dirX = adaptStep(deltaX, prevDeltaX, stepX, dirX, gainX, tolerance)
		stepY, dirY = adaptStep(deltaY, prevDeltaY, stepY, dirY, gainY, tolerance)

		attempts++
		if attempts > c.opts.MaxAttempts {
			return &core.MoveResult{
				Status:        core.MoveFailed,
				FinalX:        pos.X,
				FinalY:        pos.Y,
				PositionKnown: true,
				Attempts:      attempts,
				Err:           fmt.Errorf("max attempts (%d) exceeded", c.opts.MaxAttempts),
			}
		}

		logger.Debug("pointer: attempt %d pos=(%d, %d) target=(%d, %d) step=(%.0f, %.0f)",
			attempts, pos.X, pos.Y, targetX, targetY, cmdX, cmdY)
	}

	accX := 1 - math.Abs(float64(pos.X-targetX))/float64(c.opts.ScreenWidth)
	accY := 1 - math.Abs(float64(pos.Y-targetY))/float64(c.opts.ScreenHeight)
	accuracy := (accX + accY) / 2 * 100

	c.recordGain(initial, pos, totalCmdX, totalCmdY, attempts)

	logger.Info("pointer: converged in %d attempts, accuracy %.2f%%", attempts, accuracy)
	return &core.MoveResult{
		Status:        core.MoveConverged,
		FinalX:        pos.X,
		FinalY:        pos.Y,
		PositionKnown: true,
		Accuracy:      accuracy,
		Attempts:      attempts,
	}
}

// recordGain appends the effective gain observed over one completed move.
func (c *Controller) recordGain(initial, final core.Point, totalCmdX, totalCmdY float64, attempts int) {
	dispX := float64(final.X - initial.X)
	dispY := float64(final.Y - initial.Y)

	sample := GainSample{
		GainX:     c.gain.gainX,
		GainY:     c.gain.gainY,
		Distance:  math.Abs(dispX) + math.Abs(dispY),
		Attempts:  attempts,
		Timestamp: time.Now(),
	}
	if totalCmdX != 0 {
		sample.GainX = math.Abs(dispX) / math.Abs(totalCmdX)
	}
	if totalCmdY != 0 {
		sample.GainY = math.Abs(dispY) / math.Abs(totalCmdY)
	}
	c.gain.record(sample)
}

// recover probes the four screen corners and finally the center, observing
// after each slam; the first frame showing the pointer wins. Exhausting all
// probes is a hard recovery failure.
func (c *Controller) recover() bool {
	logger.Info("pointer: attempting recovery")
	m := c.opts.MaxUnits
	probes := [][2]int{
		{-m, -m}, // top-left
		{m, m},   // bottom-right
		{-m, m},  // bottom-left
		{m, -m},  // top-right
		{c.opts.ScreenWidth / 2, c.opts.ScreenHeight / 2},
	}

	for _, p := range probes {
		if err := c.act.MoveRelative(p[0], p[1]); err != nil {
			continue
		}
		if _, found, _, err := c.observe(); err == nil && found {
			logger.Info("pointer: recovered")
			return true
		}
	}

	logger.Error("pointer: recovery failed")
	return false
}

// Calibrate performs a known nudge and seeds the gain estimate from the
// observed displacement. The result is returned as well as applied, so
// callers can log or persist it.
type Calibration struct {
	GainX float64
	GainY float64
}

// Calibrate moves by the given raw units and measures the resulting pixel
// displacement per axis.
func (c *Controller) Calibrate(unitsX, unitsY int) (Calibration, error) {
	before, found, _, err := c.observe()
	if err != nil || !found {
		if !c.recover() {
			return Calibration{}, core.ErrPointerNotFound.WithCause(err)
		}
		before, found, _, err = c.observe()
		if err != nil || !found {
			return Calibration{}, core.ErrPointerNotFound.WithCause(err)
		}
	}

	if err := c.act.MoveRelative(unitsX, unitsY); err != nil {
		return Calibration{}, err
	}

	after, found, _, err := c.observe()
	if err != nil || !found {
		return Calibration{}, core.ErrPointerNotFound.WithCause(err)
	}

	cal := Calibration{GainX: c.gain.gainX, GainY: c.gain.gainY}
	if unitsX != 0 {
		cal.GainX = math.Abs(float64(after.X-before.X)) / math.Abs(float64(unitsX))
	}
	if unitsY != 0 {
		cal.GainY = math.Abs(float64(after.Y-before.Y)) / math.Abs(float64(unitsY))
	}
	c.gain.set(cal.GainX, cal.GainY)

	logger.Info("pointer: calibrated gain (%.3f, %.3f)", cal.GainX, cal.GainY)
	return cal, nil
}

// stepFor sizes a step as the remaining distance over the gain estimate.
func stepFor(delta, gain float64) float64 {
	if gain > 0 {
		return math.Abs(delta) / gain
	}
	return math.Abs(delta)
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}

// adaptStep applies the per-axis step policy after one observation:
// a sign flip means overshoot, so flip direction and halve the step
// (binary-search contraction, floored at the tolerance); shrinking the
// remaining distance by half or more keeps the step at full
// remaining-over-gain; shrinking it by under 10% grows the step 1.5x; the
// normal case re-derives the step from the remaining distance.
func adaptStep(delta, prevDelta, step float64, dir int, gain float64, tolerance int) (float64, int) {
	switch {
	case delta*float64(dir) < 0:
		return math.Max(float64(tolerance), step/2), -dir
	case math.Abs(delta) < math.Abs(prevDelta)*0.5:
		return math.Max(step, stepFor(delta, gain)), sign(delta)
	case math.Abs(delta) > math.Abs(prevDelta)*0.9:
		return step * 1.5, sign(delta)
	default:
		return stepFor(delta, gain), sign(delta)
	}
}
