package domain

import "github.com/jonboulle/clockwork"

// clock is the package time source, swappable so tests can freeze
// Storm.ComputedAt stamps.
var clock = clockwork.NewRealClock()

// SetClock replaces the package time source. Pass nil to restore real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
