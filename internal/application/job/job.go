// Package job defines how work is deferred to a later HTTP callback into this
// service and how the delay is rendered on the wire.
package job

import (
	"context"
	"fmt"
	"time"
)

// Headers carried by every delayed-job callback.
const (
	HeaderSecret = "X-Internal-Secret"
	HeaderNonce  = "X-Job-Nonce"
)

// Dispatcher schedules an HTTP callback to the internal job route named by
// target, carrying payload as JSON, after delay. Delivery is at-least-once;
// handlers must be idempotent.
type Dispatcher interface {
	Schedule(ctx context.Context, target string, payload interface{}, delay time.Duration) error
}

// Path is the internal route a job target is delivered to.
func Path(target string) string {
	return "/v1/internal/jobs/" + target
}

// FormatDelay renders d the way the queue expects it: whole units, largest
// first, zero units omitted ("20s", "41m", "5h31m"). Sub-second remainders
// round up to the next second.
func FormatDelay(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	secs := int64((d + time.Second - 1) / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60

	out := ""
	if h > 0 {
		out += fmt.Sprintf("%dh", h)
	}
	if m > 0 {
		out += fmt.Sprintf("%dm", m)
	}
	if s > 0 {
		out += fmt.Sprintf("%ds", s)
	}
	return out
}
