package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tinywideclouds/go-push-gateway/internal/codec"
	"github.com/tinywideclouds/go-push-gateway/internal/resultmapper"
	"github.com/tinywideclouds/go-push-gateway/internal/retrypolicy"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// PushsphereEncoder implements Encoder for a Pushsphere-to-Pushsphere relay:
// forward a PushRequest to another gateway instance's own send route,
// carrying this hop's remote retry/timeout overrides as headers (spec.md
// §4.6/§6).
type PushsphereEncoder struct {
	Profile push.PushsphereProfile
}

func (e *PushsphereEncoder) Path(push.PushRequest) (string, error) {
	if e.Profile.ProfileSetGroup == "" || e.Profile.ProfileSet == "" {
		return "", fmt.Errorf("dispatch: pushsphere profile has no target profile set")
	}
	return "/api/v1/" + e.Profile.ProfileSetGroup + "/" + e.Profile.ProfileSet + "/send", nil
}

func (e *PushsphereEncoder) Encode(req push.PushRequest) (codec.EncodedRequest, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return codec.EncodedRequest{}, fmt.Errorf("dispatch: failed to marshal pushsphere relay body: %w", err)
	}

	headers := map[string]string{"content-type": "application/json"}
	relay := retrypolicy.EncodeHeaders(e.Profile.Options.RemoteRetryOptions, e.Profile.Options.RemoteTotalTimeoutMs)
	for k, vs := range relay {
		if len(vs) == 0 {
			continue
		}
		headers[k] = vs[0]
	}
	return codec.EncodedRequest{Body: body, Headers: headers}, nil
}

func (e *PushsphereEncoder) AuthHeaders(context.Context) (map[string]string, error) {
	if e.Profile.AccessToken == "" {
		return nil, nil
	}
	scheme := string(e.Profile.AuthScheme)
	if scheme == "" {
		scheme = "Bearer"
	}
	return map[string]string{"authorization": scheme + " " + e.Profile.AccessToken}, nil
}

func (e *PushsphereEncoder) MapResponse(resp *http.Response, body []byte) push.PushResult {
	return resultmapper.MapPushsphere(resp, body)
}

func (e *PushsphereEncoder) PathRaw(push.RawPushRequest) (string, error) {
	if e.Profile.ProfileSetGroup == "" || e.Profile.ProfileSet == "" {
		return "", fmt.Errorf("dispatch: pushsphere profile has no target profile set")
	}
	return "/api/v1/" + e.Profile.ProfileSetGroup + "/" + e.Profile.ProfileSet + "/send/raw", nil
}

func (e *PushsphereEncoder) EncodeRaw(req push.RawPushRequest) (codec.EncodedRequest, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return codec.EncodedRequest{}, fmt.Errorf("dispatch: failed to marshal pushsphere raw relay body: %w", err)
	}
	headers := map[string]string{"content-type": "application/json"}
	relay := retrypolicy.EncodeHeaders(e.Profile.Options.RemoteRetryOptions, e.Profile.Options.RemoteTotalTimeoutMs)
	for k, vs := range relay {
		if len(vs) == 0 {
			continue
		}
		headers[k] = vs[0]
	}
	return codec.EncodedRequest{Body: body, Headers: headers}, nil
}
