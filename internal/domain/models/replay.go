package models

import "time"

// Phase is the state of a replayed setup.
type Phase string

const (
	PhaseArmed          Phase = "ARMED"
	PhasePartial        Phase = "PARTIAL"
	PhaseLoss           Phase = "LOSS"
	PhaseFullWin        Phase = "FULL_WIN"
	PhasePartialWin     Phase = "PARTIAL_WIN"
	PhaseTimeout        Phase = "TIMEOUT"
	PhaseTimeoutPartial Phase = "TIMEOUT_PARTIAL"
)

// Terminal reports whether no further bar can change the phase.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseArmed, PhasePartial:
		return false
	default:
		return true
	}
}

// Win reports whether the outcome banked any target.
func (p Phase) Win() bool {
	return p == PhaseFullWin || p == PhasePartialWin
}

// ReplayState is owned by a single replay invocation.
type ReplayState struct {
	Phase       Phase   `json:"phase"`
	Stop        float64 `json:"stop"`
	Remaining   float64 `json:"remaining"`
	Realized    float64 `json:"realized_r"`
	NextTarget  int     `json:"next_target"`
	BarsElapsed int     `json:"bars_elapsed"`
	ExitPrice   float64 `json:"exit_price,omitempty"`
}

type ReplayResult struct {
	SetupID     string    `json:"setup_id,omitempty"`
	Symbol      string    `json:"symbol"`
	Direction   Direction `json:"direction"`
	EntryTime   time.Time `json:"entry_time"`
	Phase       Phase     `json:"phase"`
	RealizedR   float64   `json:"realized_r"`
	BarsElapsed int       `json:"bars_elapsed"`
	ExitPrice   float64   `json:"exit_price"`
}

type ReplayStats struct {
	Total        int           `json:"total"`
	Counts       map[Phase]int `json:"counts"`
	Wins         int           `json:"wins"`
	WinRate      float64       `json:"win_rate"`
	TotalR       float64       `json:"total_r"`
	Expectancy   float64       `json:"expectancy"`
	MaxDrawdownR float64       `json:"max_drawdown_r"`
}
