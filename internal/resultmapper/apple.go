// Package resultmapper implements C7: turning an aggregated vendor HTTP
// response (or a transport-level failure) into a uniform push.PushResult.
package resultmapper

import (
	"encoding/json"
	"net/http"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

type apnsErrorBody struct {
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// MapApple decodes an APNs HTTP/2 response per spec.md §4.7. apns-id is
// mandatory; its absence is treated as a protocol violation, not a local
// bug, so it maps to INVALID_SERVER_RESPONSE rather than panicking.
func MapApple(resp *http.Response, body []byte) push.PushResult {
	apnsID := resp.Header.Get("apns-id")
	if apnsID == "" {
		return push.PushResult{
			Status:       push.StatusInvalidServerResponse,
			ResultSource: push.SourcePushProvider,
			Reason:       "missing apns-id header",
			HTTPStatus:   intPtr(resp.StatusCode),
		}
	}

	props := &push.ApplePushResultProps{
		ApnsID:       apnsID,
		ApnsUniqueID: resp.Header.Get("apns-unique-id"),
	}
	if retryAfter := resp.Header.Get("retry-after"); retryAfter != "" {
		if seconds, ok := parseRetryAfterSeconds(retryAfter); ok {
			props.RetryAfter = &seconds
		}
	}

	var reason string
	if len(body) > 0 {
		var errBody apnsErrorBody
		if err := json.Unmarshal(body, &errBody); err == nil {
			reason = errBody.Reason
		}
	}
	props.Reason = reason

	return push.PushResult{
		Status:       mapHTTPStatus(resp.StatusCode),
		ResultSource: push.SourcePushProvider,
		Reason:       reason,
		Props:        &push.PushResultProps{Apple: props},
		HTTPStatus:   intPtr(resp.StatusCode),
	}
}

func mapHTTPStatus(status int) push.Status {
	switch {
	case status == 200:
		return push.StatusSuccess
	case status == 400:
		return push.StatusInvalidRequest
	case status == 401 || status == 403:
		return push.StatusAuthFailure
	case status == 404 || status == 410:
		return push.StatusDeviceUnregistered
	case status == 413:
		return push.StatusTooLargePayload
	case status == 429:
		return push.StatusQuotaExceeded
	case status == 503:
		return push.StatusUnavailable
	case status >= 500:
		return push.StatusInternalError
	default:
		return push.StatusUnknown
	}
}

func intPtr(v int) *int { return &v }
