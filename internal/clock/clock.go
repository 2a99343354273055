// Package clock abstracts time for components that pace or measure work.
package clock

import (
	"context"
	"time"
)

// Clock supplies the current time and context-aware sleeps. The rate limiter
// and stats aggregator depend on this interface so tests can drive time
// deterministically instead of sleeping for real.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}
