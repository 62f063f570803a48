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

// FirebaseEncoder implements Encoder for FCM v1 (spec.md §4.2/§4.3/§4.7/§6).
type FirebaseEncoder struct {
	ProjectID   string
	TokenSource *credentials.FCMTokenSource
}

func (e *FirebaseEncoder) Path(push.PushRequest) (string, error) {
	return "/v1/projects/" + e.ProjectID + "/messages:send", nil
}

func (e *FirebaseEncoder) Encode(req push.PushRequest) (codec.EncodedRequest, error) {
	return codec.EncodeFirebase(req)
}

func (e *FirebaseEncoder) AuthHeaders(ctx context.Context) (map[string]string, error) {
	token, err := e.TokenSource.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("dispatch: fcm token exchange failed: %w", err)
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

func (e *FirebaseEncoder) MapResponse(resp *http.Response, body []byte) push.PushResult {
	return resultmapper.MapFirebase(resp, body)
}

func (e *FirebaseEncoder) PathRaw(push.RawPushRequest) (string, error) {
	return "/v1/projects/" + e.ProjectID + "/messages:send", nil
}

func (e *FirebaseEncoder) EncodeRaw(req push.RawPushRequest) (codec.EncodedRequest, error) {
	return codec.EncodeRaw(req)
}
