package resultmapper

import (
	"encoding/json"
	"net/http"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// MapPushsphere decodes the response from a relayed gateway-to-gateway
// send (spec.md §6's "returns PushResult JSON with HTTP status mirroring
// the canonical status table"). The remote gateway already performed its
// own vendor dispatch, so a successfully parsed body is trusted verbatim
// except resultSource, which is forced to SERVER: this hop only forwarded
// the call (spec.md §7's "failures ... SERVER (for gateway hops)").
func MapPushsphere(resp *http.Response, body []byte) push.PushResult {
	var parsed push.PushResult
	if err := json.Unmarshal(body, &parsed); err != nil {
		return push.PushResult{
			Status:       push.StatusInvalidServerResponse,
			ResultSource: push.SourceServer,
			Reason:       "malformed relay response body",
			HTTPStatus:   intPtr(resp.StatusCode),
		}
	}
	parsed.ResultSource = push.SourceServer
	if parsed.HTTPStatus == nil {
		parsed.HTTPStatus = intPtr(resp.StatusCode)
	}
	return parsed
}
