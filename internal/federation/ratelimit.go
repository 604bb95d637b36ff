package federation

import (
	"fmt"
	"sync"
	"time"

	"github.com/remembrance-oracle/oracle-core/internal/config"
)

// slidingLimiter enforces a requests-per-minute cap over a true sliding
// window (rather than the teacher's fixed-window reset-on-tick), since
// spec.md §5 specifies submissions/deletions/reads must each be bounded
// independently and a fixed window lets a burst straddling two windows
// through at 2x the configured rate.
type slidingLimiter struct {
	mu         sync.Mutex
	perMinute  int
	window     time.Duration
	timestamps []time.Time
}

func newSlidingLimiter(perMinute int) *slidingLimiter {
	return &slidingLimiter{perMinute: perMinute, window: time.Minute}
}

// allow reports whether a call is permitted at now, recording it if so.
func (l *slidingLimiter) allow(now time.Time) bool {
	if l.perMinute <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.timestamps[:0]
	for _, t := range l.timestamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.timestamps = kept

	if len(l.timestamps) >= l.perMinute {
		return false
	}
	l.timestamps = append(l.timestamps, now)
	return true
}

// ErrRateLimited is returned when a caller exceeds its per-operation budget.
var ErrRateLimited = fmt.Errorf("federation: rate limit exceeded")

// RateLimits implements spec.md §5's resource bounds: 5 submissions/min,
// 3 deletions/min, 100 reads/min, applied per Node.
type RateLimits struct {
	submissions *slidingLimiter
	deletions   *slidingLimiter
	reads       *slidingLimiter
}

// DefaultRateLimits builds the spec's default limiter set (5/3/100 per
// minute), used when no RateLimitConfig is supplied.
func DefaultRateLimits() *RateLimits {
	return NewRateLimits(config.RateLimitConfig{SubmissionPerMin: 5, DeletionPerMin: 3, ReadPerMin: 100})
}

// NewRateLimits builds a limiter set from a loaded RateLimitConfig (spec.md
// §6 "Environment configuration"), falling back to the spec defaults for
// any zero field so a partially-specified config doesn't disable a bound.
func NewRateLimits(cfg config.RateLimitConfig) *RateLimits {
	submission, deletion, read := cfg.SubmissionPerMin, cfg.DeletionPerMin, cfg.ReadPerMin
	if submission <= 0 {
		submission = 5
	}
	if deletion <= 0 {
		deletion = 3
	}
	if read <= 0 {
		read = 100
	}
	return &RateLimits{
		submissions: newSlidingLimiter(submission),
		deletions:   newSlidingLimiter(deletion),
		reads:       newSlidingLimiter(read),
	}
}

func (r *RateLimits) allowSubmission(now time.Time) bool { return r.submissions.allow(now) }
func (r *RateLimits) allowDeletion(now time.Time) bool   { return r.deletions.allow(now) }
func (r *RateLimits) allowRead(now time.Time) bool       { return r.reads.allow(now) }
