package codec

import (
	"encoding/json"
	"fmt"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// EncodeWeb builds the Web Push wire body (SPEC_FULL.md §4.8): a plain
// {notification:{...}, data:{...}} object, the convention the teacher's
// webdispatcher.go already uses, encrypted by the dispatcher per RFC 8291.
func EncodeWeb(req push.PushRequest) (EncodedRequest, error) {
	props := req.Push.Web
	if props == nil {
		props = &push.WebPushProps{}
	}

	notification := map[string]string{}
	if props.Title != "" {
		notification["title"] = props.Title
	}
	if props.Body != "" {
		notification["body"] = props.Body
	}
	if props.Image != "" {
		notification["image"] = props.Image
	}

	body := map[string]interface{}{"notification": notification}
	if len(props.Data) > 0 {
		body["data"] = props.Data
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return EncodedRequest{}, fmt.Errorf("codec: failed to marshal web payload: %w", err)
	}
	if len(encoded) > push.Web.MaxPayloadBytes() {
		return EncodedRequest{}, ErrTooLarge
	}

	return EncodedRequest{Body: encoded}, nil
}
