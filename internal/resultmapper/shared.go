package resultmapper

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

func parseRetryAfterSeconds(value string) (int64, bool) {
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil && seconds >= 0 {
		return seconds, true
	}
	if t, err := http.ParseTime(value); err == nil {
		delta := time.Until(t)
		if delta <= 0 {
			return 0, false
		}
		return int64(delta.Seconds()), true
	}
	return 0, false
}

// TransportError describes a failed attempt that never produced an
// aggregated HTTP response at all: a network error, a timeout, or a
// request the transport can positively say was never sent.
type TransportError struct {
	Err         error
	Timeout     bool
	Unprocessed bool
}

// MapTransportError implements spec.md §4.7's transport-exception
// mapping: unprocessed requests are attributed to the client, everything
// else to the push provider. The status is always INTERNAL_ERROR; only the
// reason differs ("timeout" for a timeout or deadline, "cancelled" for a
// cancellation). Too-large and illegal-argument errors are not told apart
// from other errors.
func MapTransportError(te TransportError) push.PushResult {
	source := push.SourcePushProvider
	if te.Unprocessed {
		source = push.SourceClient
	}

	status := push.StatusInternalError
	reason := "internal error"
	switch {
	case te.Timeout:
		reason = "timeout"
	case errors.Is(te.Err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.Is(te.Err, context.Canceled):
		reason = "cancelled"
	}

	return push.PushResult{
		Status:       status,
		ResultSource: source,
		Reason:       reason,
		Cause:        te.Err,
	}
}
