package push

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip[T any](t *testing.T, value T) T {
	t.Helper()
	data, err := json.Marshal(value)
	require.NoError(t, err)
	var out T
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestPushRequest_RoundTrip(t *testing.T) {
	customData := NewMap()
	customData.Set("room", StringValue("42"))

	req := PushRequest{
		Provider:    Apple,
		DeviceToken: "abc123",
		Push: Push{
			Apple: &ApplePushProps{
				Alert:      &ApnsAlert{Text: "hello"},
				Badge:      intPtr(3),
				Sound:      &AppleSound{Name: "default"},
				CustomData: customData,
			},
		},
		IdempotencyKey: "key-1",
		Variables:      map[string]string{"name": "Ada"},
	}

	out := roundTrip(t, req)
	assert.Equal(t, req.Provider, out.Provider)
	assert.Equal(t, req.DeviceToken, out.DeviceToken)
	assert.Equal(t, req.IdempotencyKey, out.IdempotencyKey)
	require.NotNil(t, out.Push.Apple)
	require.NotNil(t, out.Push.Apple.Alert)
	assert.Equal(t, "hello", out.Push.Apple.Alert.Text)
	require.NotNil(t, out.Push.Apple.Sound)
	assert.Equal(t, "default", out.Push.Apple.Sound.Name)
	require.NotNil(t, out.Push.Apple.CustomData)
	room, ok := out.Push.Apple.CustomData.Get("room")
	require.True(t, ok)
	assert.Equal(t, StringValue("42"), room)
}

func TestPush_MoreThanOneVendorSubPropertyFailsToDecode(t *testing.T) {
	data := []byte(`{"apple":{"alert":"hi"},"fcm":{"token":"t"}}`)
	var p Push
	err := json.Unmarshal(data, &p)
	assert.Error(t, err)
}

func TestPush_GenericRoundTrips(t *testing.T) {
	p := Push{}
	out := roundTrip(t, p)
	assert.Equal(t, Generic, out.Provider())
}

func TestApnsAlert_StringForm_RoundTrip(t *testing.T) {
	alert := ApnsAlert{Text: "plain text"}
	out := roundTrip(t, alert)
	assert.Equal(t, "plain text", out.Text)
	assert.Nil(t, out.Dict)
}

func TestApnsAlert_DictForm_RoundTrip(t *testing.T) {
	alert := ApnsAlert{Dict: &ApplePushAlert{Title: "Title", Body: "Body"}}
	out := roundTrip(t, alert)
	require.NotNil(t, out.Dict)
	assert.Equal(t, "Title", out.Dict.Title)
	assert.Equal(t, "Body", out.Dict.Body)
	assert.Empty(t, out.Text)
}

func TestAppleSound_StringForm_RoundTrip(t *testing.T) {
	sound := AppleSound{Name: "chime.caf"}
	out := roundTrip(t, sound)
	assert.Equal(t, "chime.caf", out.Name)
	assert.Nil(t, out.Dict)
}

func TestAppleSound_DictForm_RoundTrip(t *testing.T) {
	sound := AppleSound{Dict: &AppleCriticalSound{Critical: true, Name: "alarm.caf", Volume: 1.0}}
	out := roundTrip(t, sound)
	require.NotNil(t, out.Dict)
	assert.Equal(t, "alarm.caf", out.Dict.Name)
	assert.True(t, out.Dict.Critical)
}

func TestFcmErrorDetails_RoundTripWithCustomData(t *testing.T) {
	detail := *NewMap()
	detail.Set("@type", StringValue("type.googleapis.com/google.rpc.ErrorInfo"))
	detail.Set("reason", StringValue("UNREGISTERED"))

	details := FcmErrorDetails{
		Code:    404,
		Message: "not found",
		Status:  "NOT_FOUND",
		Details: []Map{detail},
	}
	out := roundTrip(t, details)
	assert.Equal(t, details.Code, out.Code)
	assert.Equal(t, details.Message, out.Message)
	require.Len(t, out.Details, 1)
	reason, ok := out.Details[0].Get("reason")
	require.True(t, ok)
	assert.Equal(t, StringValue("UNREGISTERED"), reason)
}

func TestPushResult_RoundTrip(t *testing.T) {
	result := PushResult{
		Status:       StatusDeviceUnregistered,
		ResultSource: SourcePushProvider,
		Reason:       "Unregistered",
		Cause:        assert.AnError,
		Props: &PushResultProps{
			Apple: &ApplePushResultProps{ApnsID: "abc", Reason: "Unregistered"},
		},
		HTTPStatus: intPtr(410),
	}

	out := roundTrip(t, result)
	assert.Equal(t, result.Status, out.Status)
	assert.Equal(t, result.ResultSource, out.ResultSource)
	assert.Equal(t, result.Reason, out.Reason)
	assert.Nil(t, out.Cause, "causes are retained in-memory but never serialized")
	require.NotNil(t, out.Props)
	require.NotNil(t, out.Props.Apple)
	assert.Equal(t, "abc", out.Props.Apple.ApnsID)
	require.NotNil(t, out.HTTPStatus)
	assert.Equal(t, 410, *out.HTTPStatus)
}

func TestRawPushRequest_RoundTrip(t *testing.T) {
	req := RawPushRequest{
		Provider:    Firebase,
		DeviceToken: "tok",
		RawPush:     RawPush{Headers: map[string]string{"x": "y"}, Content: `{"message":{}}`},
	}
	out := roundTrip(t, req)
	assert.Equal(t, req.Provider, out.Provider)
	assert.Equal(t, req.RawPush.Content, out.RawPush.Content)
	assert.Equal(t, "y", out.RawPush.Headers["x"])
}

func intPtr(v int) *int { return &v }
