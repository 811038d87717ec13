package connection

import (
	"fmt"
	"time"
)

// RetryPolicy bounds Connect. Attempt k waits k×BaseWait before attempt k+1.
type RetryPolicy struct {
	MaxAttempts int
	BaseWait    time.Duration
}

// DefaultRetryPolicy makes three attempts with a 2s base wait.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseWait: 2 * time.Second}
}

// Wait is the linear backoff after a failed attempt.
func (p RetryPolicy) Wait(attempt int) time.Duration {
	return time.Duration(attempt) * p.BaseWait
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.BaseWait <= 0 {
		return fmt.Errorf("base wait must be positive, got %v", p.BaseWait)
	}
	return nil
}
