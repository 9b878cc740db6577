package negotiate

import "time"

// Clock is the time source for context ages, the sweep and audit
// timestamps. Tests substitute a manual clock.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
