package resultmapper

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

type fcmSuccessBody struct {
	Name string `json:"name"`
}

type fcmErrorEnvelope struct {
	Error push.FcmErrorDetails `json:"error"`
}

// MapFirebase decodes an FCM v1 HTTP response per spec.md §4.7: 200
// carries {name} as the message ID; non-200 requires a JSON content type
// and a {error:{...}} envelope, falling back to INVALID_SERVER_RESPONSE
// whenever the shape doesn't match.
func MapFirebase(resp *http.Response, body []byte) push.PushResult {
	if resp.StatusCode == 200 {
		var ok fcmSuccessBody
		if err := json.Unmarshal(body, &ok); err != nil {
			return push.PushResult{
				Status:       push.StatusInvalidServerResponse,
				ResultSource: push.SourcePushProvider,
				Reason:       "unparseable success body",
				HTTPStatus:   intPtr(resp.StatusCode),
			}
		}
		return push.PushResult{
			Status:       push.StatusSuccess,
			ResultSource: push.SourcePushProvider,
			Props:        &push.PushResultProps{Fcm: &push.FcmPushResultProps{MessageID: ok.Name}},
			HTTPStatus:   intPtr(resp.StatusCode),
		}
	}

	if !strings.Contains(resp.Header.Get("content-type"), "application/json") {
		return push.PushResult{
			Status:       push.StatusInvalidServerResponse,
			ResultSource: push.SourcePushProvider,
			Reason:       "non-json error response",
			HTTPStatus:   intPtr(resp.StatusCode),
		}
	}

	var envelope fcmErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return push.PushResult{
			Status:       push.StatusInvalidServerResponse,
			ResultSource: push.SourcePushProvider,
			Reason:       "malformed error envelope",
			HTTPStatus:   intPtr(resp.StatusCode),
		}
	}

	props := &push.FcmPushResultProps{Error: &envelope.Error}
	if retryAfter := resp.Header.Get("retry-after"); retryAfter != "" {
		if seconds, ok := parseRetryAfterSeconds(retryAfter); ok {
			props.RetryAfter = &seconds
		}
	}

	return push.PushResult{
		Status:       mapHTTPStatus(resp.StatusCode),
		ResultSource: push.SourcePushProvider,
		Reason:       envelope.Error.Message,
		Props:        &push.PushResultProps{Fcm: props},
		HTTPStatus:   intPtr(resp.StatusCode),
	}
}
