package codec

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// EncodeRaw passes a RawPushRequest's content through unchanged, aside from
// a JSON-object-prefix check and the provider's size limit (spec.md §4.2).
func EncodeRaw(req push.RawPushRequest) (EncodedRequest, error) {
	trimmed := strings.TrimSpace(req.RawPush.Content)
	if !strings.HasPrefix(trimmed, "{") {
		return EncodedRequest{}, fmt.Errorf("%w: raw push content must be a JSON object", ErrInvalidRequest)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return EncodedRequest{}, fmt.Errorf("%w: raw push content is not valid JSON: %v", ErrInvalidRequest, err)
	}

	if limit := req.Provider.MaxPayloadBytes(); limit > 0 && len(req.RawPush.Content) > limit {
		return EncodedRequest{}, ErrTooLarge
	}

	headers := make(map[string]string, len(req.RawPush.Headers))
	for k, v := range req.RawPush.Headers {
		headers[k] = v
	}
	return EncodedRequest{Body: []byte(req.RawPush.Content), Headers: headers}, nil
}
