package resultmapper

import (
	"net/http"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// MapWeb decodes an RFC 8030 Web Push response: 201 (or 200/202) is a
// success with no body to parse; 404/410 means the subscription is gone;
// anything else maps through the shared status table.
func MapWeb(resp *http.Response) push.PushResult {
	props := &push.WebPushResultProps{}
	if retryAfter := resp.Header.Get("retry-after"); retryAfter != "" {
		if seconds, ok := parseRetryAfterSeconds(retryAfter); ok {
			props.RetryAfter = &seconds
		}
	}

	status := mapWebStatus(resp.StatusCode)
	return push.PushResult{
		Status:       status,
		ResultSource: push.SourcePushProvider,
		Props:        &push.PushResultProps{Web: props},
		HTTPStatus:   intPtr(resp.StatusCode),
	}
}

func mapWebStatus(status int) push.Status {
	switch {
	case status == 200 || status == 201 || status == 202:
		return push.StatusSuccess
	case status == 404 || status == 410:
		return push.StatusDeviceUnregistered
	default:
		return mapHTTPStatus(status)
	}
}
