package lock

import (
	"context"
	"strconv"
	"time"
)

// Locker hands out short-lived exclusive leases on a key.
//
// TryAcquire returns a release func and true when the lease was taken, or
// false when another holder has it. Release is safe to call more than once.
type Locker interface {
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

func PeriodKey(periodStart int64) string {
	return "defess:period-lock:" + strconv.FormatInt(periodStart, 10)
}
