package replay

import (
	"math"

	"SMCScan/internal/domain/models"
)

// DefaultMaxLookahead is one day of 5m bars.
const DefaultMaxLookahead = 288

// Arm returns the initial state for a freshly emitted setup.
func Arm(setup models.Setup) models.ReplayState {
	return models.ReplayState{
		Phase:     models.PhaseArmed,
		Stop:      setup.Stop,
		Remaining: 1,
	}
}

// Step advances the state by one bar. It is pure: the result depends only on
// its arguments and terminal states are returned unchanged.
//
// Same-bar ambiguity is resolved the same way everywhere: while ARMED the stop
// is checked before the first target, while PARTIAL the next target is checked
// before the breakeven stop. The bar that fills the first target is consumed
// by that transition.
func Step(st models.ReplayState, setup models.Setup, bar models.Bar) models.ReplayState {
	if st.Phase.Terminal() {
		return st
	}
	st.BarsElapsed++

	sign := setup.Direction.Sign()
	favorable, adverse := bar.High, bar.Low
	if setup.Direction == models.Short {
		favorable, adverse = bar.Low, bar.High
	}
	stopHit := sign*(adverse-st.Stop) <= 0
	reached := func(level float64) bool { return sign*(favorable-level) >= 0 }

	switch st.Phase {
	case models.PhaseArmed:
		if stopHit {
			st.Realized += st.Remaining * setup.RMultiple(st.Stop)
			st.Remaining = 0
			st.ExitPrice = st.Stop
			st.Phase = models.PhaseLoss
			return st
		}
		if reached(setup.Targets[0].Price) {
			st = bank(st, setup)
			if st.Phase != models.PhaseFullWin {
				st.Phase = models.PhasePartial
				st.Stop = setup.Entry
			}
		}
		return st

	case models.PhasePartial:
		if reached(setup.Targets[st.NextTarget].Price) {
			for st.Phase == models.PhasePartial && reached(setup.Targets[st.NextTarget].Price) {
				st = bank(st, setup)
			}
			return st
		}
		if stopHit {
			st.Realized += st.Remaining * setup.RMultiple(st.Stop)
			st.Remaining = 0
			st.ExitPrice = st.Stop
			st.Phase = models.PhasePartialWin
		}
		return st
	}
	return st
}

// bank closes the fraction assigned to the next target.
func bank(st models.ReplayState, setup models.Setup) models.ReplayState {
	t := setup.Targets[st.NextTarget]
	st.Realized += t.Fraction * setup.RMultiple(t.Price)
	st.Remaining -= t.Fraction
	st.NextTarget++
	if st.NextTarget == len(setup.Targets) {
		st.Remaining = 0
		st.ExitPrice = t.Price
		st.Phase = models.PhaseFullWin
	}
	return st
}

// Expire ends a replay whose window ran out. An ARMED setup is marked to the
// last close (never worse than -1R), a PARTIAL one keeps what it banked.
func Expire(st models.ReplayState, setup models.Setup, last *models.Bar) models.ReplayState {
	switch st.Phase {
	case models.PhaseArmed:
		st.Phase = models.PhaseTimeout
		if last != nil {
			st.Realized = math.Max(-1, setup.RMultiple(last.Close))
			st.ExitPrice = last.Close
		}
	case models.PhasePartial:
		st.Phase = models.PhaseTimeoutPartial
		if last != nil {
			st.ExitPrice = last.Close
		}
	}
	return st
}

// Engine replays setups over the bars that followed them.
type Engine struct {
	maxLookahead int
}

func NewEngine(maxLookahead int) *Engine {
	if maxLookahead <= 0 {
		maxLookahead = DefaultMaxLookahead
	}
	return &Engine{maxLookahead: maxLookahead}
}

func (e *Engine) MaxLookahead() int { return e.maxLookahead }

// Replay walks at most MaxLookahead bars of future and reports the outcome.
func (e *Engine) Replay(setup models.Setup, future []models.Bar) models.ReplayResult {
	if len(future) > e.maxLookahead {
		future = future[:e.maxLookahead]
	}

	st := Arm(setup)
	for _, bar := range future {
		st = Step(st, setup, bar)
		if st.Phase.Terminal() {
			break
		}
	}
	if !st.Phase.Terminal() {
		var last *models.Bar
		if len(future) > 0 {
			last = &future[len(future)-1]
		}
		st = Expire(st, setup, last)
	}

	return models.ReplayResult{
		SetupID:     setup.ID,
		Symbol:      setup.Symbol,
		Direction:   setup.Direction,
		EntryTime:   setup.Timestamp,
		Phase:       st.Phase,
		RealizedR:   st.Realized,
		BarsElapsed: st.BarsElapsed,
		ExitPrice:   st.ExitPrice,
	}
}
