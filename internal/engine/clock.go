package engine

import "time"

// Clock abstracts wall-clock access so the cooldown gates can be driven
// deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
