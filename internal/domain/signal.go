package domain

import "time"

// Action is what a strategy wants to do with its position this tick.
type Action string

const (
	ActionEnterLong Action = "ENTER_LONG"
	ActionExit      Action = "EXIT"
	ActionHold      Action = "HOLD"
)

// Signal is the per-tick output of one strategy evaluator. Signals are
// produced fresh each tick and never persisted — only their effect on a
// Position survives a restart.
type Signal struct {
	Strategy    string
	Action      Action
	Strength    float64 // 0–1, how decisive the setup looks
	Stop        float64 // proposed stop price, set on ENTER_LONG
	Reason      string
	GeneratedAt time.Time
}

// Hold is the neutral signal for a strategy.
func Hold(strategy, reason string, at time.Time) Signal {
	return Signal{Strategy: strategy, Action: ActionHold, Reason: reason, GeneratedAt: at}
}
