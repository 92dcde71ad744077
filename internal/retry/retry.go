package retry

import "time"

// Budget is a fixed-attempt, fixed-pause retry policy. Both the wireless
// association poll and the broker connect loop run on one of these; the
// budget is what keeps a single repair from stalling the node loop forever.
type Budget struct {
	Attempts int
	Pause    time.Duration
	Sleep    func(time.Duration) // nil means time.Sleep
}

// Do calls fn up to b.Attempts times, pausing between attempts but not after
// the last one. It stops at the first attempt that returns true and reports
// whether any attempt succeeded.
func (b Budget) Do(fn func(attempt int) bool) bool {
	sleep := b.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	for i := 0; i < b.Attempts; i++ {
		if fn(i) {
			return true
		}
		if i < b.Attempts-1 && b.Pause > 0 {
			sleep(b.Pause)
		}
	}
	return false
}
