package resultmapper

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

func TestMapApple_Success(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Header: http.Header{"Apns-Id": []string{"1"}}}
	result := MapApple(resp, nil)
	assert.Equal(t, push.StatusSuccess, result.Status)
	assert.Equal(t, push.SourcePushProvider, result.ResultSource)
	require.NotNil(t, result.Props)
	require.NotNil(t, result.Props.Apple)
	assert.Equal(t, "1", result.Props.Apple.ApnsID)
}

func TestMapApple_MissingApnsIdIsInvalidServerResponse(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Header: http.Header{}}
	result := MapApple(resp, nil)
	assert.Equal(t, push.StatusInvalidServerResponse, result.Status)
}

func TestMapApple_ParsesReasonFromBody(t *testing.T) {
	resp := &http.Response{StatusCode: 410, Header: http.Header{"Apns-Id": []string{"1"}}}
	result := MapApple(resp, []byte(`{"reason":"Unregistered"}`))
	assert.Equal(t, push.StatusDeviceUnregistered, result.Status)
	assert.Equal(t, "Unregistered", result.Reason)
}

func TestMapFirebase_Success(t *testing.T) {
	resp := &http.Response{StatusCode: 200, Header: http.Header{}}
	result := MapFirebase(resp, []byte(`{"name":"projects/p/messages/123"}`))
	assert.Equal(t, push.StatusSuccess, result.Status)
	assert.Equal(t, "projects/p/messages/123", result.Props.Fcm.MessageID)
}

func TestMapFirebase_ErrorRequiresJSONContentType(t *testing.T) {
	resp := &http.Response{StatusCode: 400, Header: http.Header{"Content-Type": []string{"text/plain"}}}
	result := MapFirebase(resp, []byte(`not json`))
	assert.Equal(t, push.StatusInvalidServerResponse, result.Status)
}

func TestMapFirebase_ParsesErrorEnvelope(t *testing.T) {
	resp := &http.Response{StatusCode: 404, Header: http.Header{"Content-Type": []string{"application/json; charset=utf-8"}}}
	result := MapFirebase(resp, []byte(`{"error":{"code":404,"message":"Requested entity was not found.","status":"NOT_FOUND"}}`))
	assert.Equal(t, push.StatusDeviceUnregistered, result.Status)
	assert.Equal(t, "Requested entity was not found.", result.Reason)
}

func TestMapWeb_Success(t *testing.T) {
	resp := &http.Response{StatusCode: 201, Header: http.Header{}}
	result := MapWeb(resp)
	assert.Equal(t, push.StatusSuccess, result.Status)
}

func TestMapWeb_Gone(t *testing.T) {
	resp := &http.Response{StatusCode: 410, Header: http.Header{}}
	result := MapWeb(resp)
	assert.Equal(t, push.StatusDeviceUnregistered, result.Status)
}

func TestMapTransportError_UnprocessedIsClientSourced(t *testing.T) {
	result := MapTransportError(TransportError{Unprocessed: true})
	assert.Equal(t, push.SourceClient, result.ResultSource)
}

func TestMapTransportError_OtherwisePushProviderSourced(t *testing.T) {
	result := MapTransportError(TransportError{Timeout: true})
	assert.Equal(t, push.SourcePushProvider, result.ResultSource)
	assert.Equal(t, "timeout", result.Reason)
}

func TestMapPushsphere_TrustsParsedBody(t *testing.T) {
	resp := &http.Response{StatusCode: 410}
	body := []byte(`{"status":"DEVICE_UNREGISTERED","resultSource":"PUSH_PROVIDER","reason":"Unregistered"}`)
	result := MapPushsphere(resp, body)
	assert.Equal(t, push.StatusDeviceUnregistered, result.Status)
	assert.Equal(t, push.SourceServer, result.ResultSource, "relay hop forces SERVER regardless of the remote's own attribution")
	assert.Equal(t, "Unregistered", result.Reason)
	require.NotNil(t, result.HTTPStatus)
	assert.Equal(t, 410, *result.HTTPStatus)
}

func TestMapPushsphere_MalformedBodyIsInvalidServerResponse(t *testing.T) {
	resp := &http.Response{StatusCode: 200}
	result := MapPushsphere(resp, []byte(`not json`))
	assert.Equal(t, push.StatusInvalidServerResponse, result.Status)
	assert.Equal(t, push.SourceServer, result.ResultSource)
}
