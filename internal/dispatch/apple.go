package dispatch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tinywideclouds/go-push-gateway/internal/codec"
	"github.com/tinywideclouds/go-push-gateway/internal/credentials"
	"github.com/tinywideclouds/go-push-gateway/internal/resultmapper"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// AppleEncoder implements Encoder for APNs (spec.md §4.2/§4.3/§4.7/§6).
type AppleEncoder struct {
	BundleID string
	Auth     *credentials.AppleAuth
}

func (e *AppleEncoder) Path(req push.PushRequest) (string, error) {
	if req.DeviceToken == "" {
		return "", fmt.Errorf("dispatch: device token is required")
	}
	return "/3/device/" + req.DeviceToken, nil
}

func (e *AppleEncoder) Encode(req push.PushRequest) (codec.EncodedRequest, error) {
	return codec.EncodeApple(req, e.BundleID)
}

func (e *AppleEncoder) AuthHeaders(context.Context) (map[string]string, error) {
	return e.Auth.Headers(), nil
}

func (e *AppleEncoder) PathRaw(req push.RawPushRequest) (string, error) {
	if req.DeviceToken == "" {
		return "", fmt.Errorf("dispatch: device token is required")
	}
	return "/3/device/" + req.DeviceToken, nil
}

func (e *AppleEncoder) EncodeRaw(req push.RawPushRequest) (codec.EncodedRequest, error) {
	return codec.EncodeRaw(req)
}

func (e *AppleEncoder) MapResponse(resp *http.Response, body []byte) push.PushResult {
	return resultmapper.MapApple(resp, body)
}
