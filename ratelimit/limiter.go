package ratelimit

import (
	"context"
	"time"
)

// Default budget: 10 admissions per sliding 60s window.
const (
	DefaultLimit  = 10
	DefaultWindow = time.Minute
)

// Limiter decides whether a client may proceed at instant now.
//
// Implementations must not bake a failure policy into the decision: when
// the error is non-nil the boolean carries no meaning and the caller picks
// fail-open or fail-closed for its own domain.
type Limiter interface {
	Admit(ctx context.Context, clientKey string, now time.Time) (bool, error)
}
