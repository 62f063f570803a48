package codec

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

func TestEncodeApple_SimpleAlert(t *testing.T) {
	req := push.PushRequest{
		Provider:    push.Apple,
		DeviceToken: "tok",
		Push: push.Push{Apple: &push.ApplePushProps{
			Alert: &push.ApnsAlert{Text: "hi"},
		}},
	}
	enc, err := EncodeApple(req, "com.test.app")
	require.NoError(t, err)
	assert.Equal(t, "com.test.app", enc.Headers["apns-topic"])
	assert.Contains(t, string(enc.Body), `"alert":"hi"`)
}

func TestEncodeApple_CustomDataIsSiblingOfAps(t *testing.T) {
	custom := push.NewMap()
	custom.Set("msg_id", push.StringValue("123"))
	req := push.PushRequest{
		Provider:    push.Apple,
		DeviceToken: "tok",
		Push: push.Push{Apple: &push.ApplePushProps{
			Alert:      &push.ApnsAlert{Text: "hi"},
			CustomData: custom,
		}},
	}
	enc, err := EncodeApple(req, "com.test.app")
	require.NoError(t, err)
	body := string(enc.Body)
	assert.Contains(t, body, `"aps":`)
	assert.Contains(t, body, `"msg_id":"123"`)
}

func TestEncodeApple_BackgroundRequiresContentAvailableAndPriority(t *testing.T) {
	req := push.PushRequest{
		Provider:    push.Apple,
		DeviceToken: "tok",
		Push: push.Push{Apple: &push.ApplePushProps{
			Headers: push.ApplePushHeaders{ApnsPushType: push.PushTypeBackground},
		}},
	}
	_, err := EncodeApple(req, "com.test.app")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEncodeApple_BackgroundRejectsAlert(t *testing.T) {
	req := push.PushRequest{
		Provider:    push.Apple,
		DeviceToken: "tok",
		Push: push.Push{Apple: &push.ApplePushProps{
			ContentAvailable: true,
			Alert:            &push.ApnsAlert{Text: "nope"},
			Headers: push.ApplePushHeaders{
				ApnsPushType: push.PushTypeBackground,
				ApnsPriority: 5,
			},
		}},
	}
	_, err := EncodeApple(req, "com.test.app")
	require.Error(t, err)
}

func TestEncodeApple_BackgroundHappyPath(t *testing.T) {
	req := push.PushRequest{
		Provider:    push.Apple,
		DeviceToken: "tok",
		Push: push.Push{Apple: &push.ApplePushProps{
			ContentAvailable: true,
			Headers: push.ApplePushHeaders{
				ApnsPushType: push.PushTypeBackground,
				ApnsPriority: 5,
			},
		}},
	}
	_, err := EncodeApple(req, "com.test.app")
	require.NoError(t, err)
}

func TestEncodeApple_ApnsIdMustBeUUID(t *testing.T) {
	req := push.PushRequest{
		Provider:    push.Apple,
		DeviceToken: "tok",
		Push: push.Push{Apple: &push.ApplePushProps{
			Headers: push.ApplePushHeaders{ApnsID: "not-a-uuid"},
		}},
	}
	_, err := EncodeApple(req, "com.test.app")
	require.Error(t, err)

	valid := uuid.New().String()
	req.Push.Apple.Headers.ApnsID = valid
	enc, err := EncodeApple(req, "com.test.app")
	require.NoError(t, err)
	assert.Equal(t, valid, enc.Headers["apns-id"])
}

func TestEncodeApple_TooLarge(t *testing.T) {
	big := push.NewMap()
	big.Set("blob", push.StringValue(strings.Repeat("x", push.Apple.MaxPayloadBytes())))
	req := push.PushRequest{
		Provider:    push.Apple,
		DeviceToken: "tok",
		Push:        push.Push{Apple: &push.ApplePushProps{CustomData: big}},
	}
	_, err := EncodeApple(req, "com.test.app")
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestEncodeFirebase_SynthesizesNotificationFromData(t *testing.T) {
	req := push.PushRequest{
		Provider:    push.Firebase,
		DeviceToken: "tok",
		Push: push.Push{Fcm: &push.FcmPushProps{
			Data: map[string]string{"title": "T", "body": "B"},
		}},
	}
	enc, err := EncodeFirebase(req)
	require.NoError(t, err)
	body := string(enc.Body)
	assert.Contains(t, body, `"notification":{"body":"B","title":"T"}`)
}

func TestEncodeFirebase_InjectsTokenFromRequest(t *testing.T) {
	req := push.PushRequest{
		Provider:    push.Firebase,
		DeviceToken: "device-tok",
		Push:        push.Push{Fcm: &push.FcmPushProps{}},
	}
	enc, err := EncodeFirebase(req)
	require.NoError(t, err)
	assert.Contains(t, string(enc.Body), `"token":"device-tok"`)
}

func TestEncodeRaw_RequiresJSONObjectPrefix(t *testing.T) {
	_, err := EncodeRaw(push.RawPushRequest{
		Provider:    push.Apple,
		DeviceToken: "tok",
		RawPush:     push.RawPush{Content: "[1,2,3]"},
	})
	require.Error(t, err)
}

func TestEncodeRaw_GenericIsUnbounded(t *testing.T) {
	big := `{"blob":"` + strings.Repeat("x", 10_000) + `"}`
	_, err := EncodeRaw(push.RawPushRequest{
		Provider:    push.Generic,
		DeviceToken: "tok",
		RawPush:     push.RawPush{Content: big},
	})
	require.NoError(t, err)
}

func TestEncodeRaw_EnforcesProviderLimit(t *testing.T) {
	big := `{"blob":"` + strings.Repeat("x", push.Apple.MaxPayloadBytes()) + `"}`
	_, err := EncodeRaw(push.RawPushRequest{
		Provider:    push.Apple,
		DeviceToken: "tok",
		RawPush:     push.RawPush{Content: big},
	})
	require.ErrorIs(t, err, ErrTooLarge)
}
