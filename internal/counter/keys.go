// Package counter keys and stores the usage counters. One counter exists
// per (service, application, metric, period, bucket label); values are
// exact sums of applied increments, never estimates.
package counter

import (
	"fmt"
	"time"

	"github.com/smallbiznis/tollgate/internal/period"
)

// Key addresses a single counter bucket. The string form is namespaced
// per tenant so counters of different services can never collide.
type Key struct {
	ServiceID     string
	ApplicationID string
	MetricID      string
	Window        period.Window
}

func (k Key) String() string {
	prefix := fmt.Sprintf("stats/{service:%s}/cinstance:%s/metric:%s",
		k.ServiceID, k.ApplicationID, k.MetricID)
	if !k.Window.Bounded() {
		return prefix + "/eternity"
	}
	return fmt.Sprintf("%s/%s:%s", prefix, k.Window.Kind, k.Window.Label)
}

// For builds the counter key of one period kind at the given instant.
func For(serviceID, appID, metricID string, kind period.Kind, at time.Time) Key {
	return Key{
		ServiceID:     serviceID,
		ApplicationID: appID,
		MetricID:      metricID,
		Window:        period.For(kind, at),
	}
}

// ForAllPeriods builds the keys for every period kind at the given
// instant. Accounting increments all of them regardless of limits.
func ForAllPeriods(serviceID, appID, metricID string, at time.Time) []Key {
	keys := make([]Key, 0, len(period.Kinds))
	for _, kind := range period.Kinds {
		keys = append(keys, For(serviceID, appID, metricID, kind, at))
	}
	return keys
}
