package utils

import (
	"time"
)

type Watch struct {
	startTime time.Time
	lapTime   time.Time
}

func (w *Watch) Start() {
	w.startTime = time.Now()
	w.lapTime = w.startTime
}

func (w *Watch) Elapsed() time.Duration {
	return time.Since(w.startTime)
}

// Time since the last lap (or start), and begins a new lap.
func (w *Watch) Lap() time.Duration {
	now := time.Now()
	diff := now.Sub(w.lapTime)
	w.lapTime = now
	return diff
}
