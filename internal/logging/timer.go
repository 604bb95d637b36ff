package logging

import "time"

// Timer measures an operation's duration and logs it to the performance
// category on Stop, matching the teacher's StartTimer/Stop convenience
// pattern used around lifecycle cycles and federation calls.
type Timer struct {
	label string
	start time.Time
}

// StartTimer begins timing label.
func StartTimer(label string) *Timer {
	return &Timer{label: label, start: time.Now()}
}

// Stop logs the elapsed duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(CategoryPerformance).Debug("%s took %s", t.label, elapsed)
	return elapsed
}

// StopWithThreshold logs at warn level if elapsed exceeds threshold,
// otherwise at debug level — used to flag slow lifecycle cycles and
// federation round-trips without spamming the log on the common path.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(CategoryPerformance).Warn("%s took %s (exceeds threshold %s)", t.label, elapsed, threshold)
	} else {
		Get(CategoryPerformance).Debug("%s took %s", t.label, elapsed)
	}
	return elapsed
}
