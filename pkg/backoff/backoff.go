// Package backoff maps retry attempts to wait durations.
package backoff

import (
	"errors"
	"fmt"
	"time"
)

// Delay returns the wait before the given 1-indexed attempt. Attempts past the
// end of the schedule reuse its last entry. Attempts below 1 behave as 1 and
// an empty schedule never waits.
func Delay(attempt int, schedule []time.Duration) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	return schedule[min(attempt-1, len(schedule)-1)]
}

// Policy bounds how many times a job is retried and how long to wait between tries.
type Policy struct {
	Schedule    []time.Duration
	MaxAttempts int
}

func NewPolicy(maxAttempts int, schedule ...time.Duration) Policy {
	return Policy{Schedule: schedule, MaxAttempts: maxAttempts}
}

func (p Policy) Delay(attempt int) time.Duration {
	return Delay(attempt, p.Schedule)
}

// Exhausted reports whether no attempt is left after retryCount recorded failures.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxAttempts
}

func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	for i, d := range p.Schedule {
		if d < 0 {
			return fmt.Errorf("backoff entry %d is negative: %s", i, d)
		}
	}
	if len(p.Schedule) == 0 {
		return errors.New("backoff schedule is empty")
	}
	return nil
}
