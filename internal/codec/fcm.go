package codec

import (
	"encoding/json"
	"fmt"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// EncodeFirebase builds the FCM wire body (spec.md §4.2): a
// {message:{...}, validate_only:false} envelope, synthesizing a
// notification block when none was given explicitly but title/body/image
// were, and injecting token from the request if the caller omitted it.
func EncodeFirebase(req push.PushRequest) (EncodedRequest, error) {
	props := req.Push.Fcm
	if props == nil {
		props = &push.FcmPushProps{}
	}

	message := map[string]interface{}{}

	token := props.Token
	if token == "" {
		token = req.DeviceToken
	}
	message["token"] = token

	notification := props.Notification
	if notification == nil && (props.Data["title"] != "" || props.Data["body"] != "" || props.Data["image"] != "") {
		notification = &push.FcmNotification{
			Title:    props.Data["title"],
			Body:     props.Data["body"],
			ImageURI: props.Data["image"],
		}
	}
	if notification != nil {
		n := map[string]interface{}{}
		if notification.Title != "" {
			n["title"] = notification.Title
		}
		if notification.Body != "" {
			n["body"] = notification.Body
		}
		if notification.ImageURI != "" {
			n["image"] = notification.ImageURI
		}
		message["notification"] = n
	}

	if len(props.Data) > 0 {
		message["data"] = props.Data
	}
	if props.Android != nil {
		android := map[string]interface{}{}
		if props.Android.CollapseKey != "" {
			android["collapse_key"] = props.Android.CollapseKey
		}
		if props.Android.RestrictedPackageName != "" {
			android["restricted_package_name"] = props.Android.RestrictedPackageName
		}
		message["android"] = android
	}
	if props.CollapseKey != "" {
		message["collapse_key"] = props.CollapseKey
	}
	if len(props.FcmOptions) > 0 {
		message["fcm_options"] = props.FcmOptions
	}
	if props.BodyLocKey != "" {
		message["body_loc_key"] = props.BodyLocKey
	}
	if len(props.BodyLocArgs) > 0 {
		message["body_loc_args"] = props.BodyLocArgs
	}

	body := map[string]interface{}{
		"message":       message,
		"validate_only": false,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return EncodedRequest{}, fmt.Errorf("codec: failed to marshal firebase payload: %w", err)
	}
	if len(encoded) > push.Firebase.MaxPayloadBytes() {
		return EncodedRequest{}, ErrTooLarge
	}

	return EncodedRequest{Body: encoded, Headers: map[string]string{"content-type": "application/json"}}, nil
}
