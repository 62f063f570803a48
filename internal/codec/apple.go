package codec

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// EncodedRequest is a shaped wire body plus the headers the dispatcher
// should attach to the HTTP/2 request.
type EncodedRequest struct {
	Body    []byte
	Headers map[string]string
}

// EncodeApple builds the APNs wire body and headers from a PushRequest
// (spec.md §4.2).
func EncodeApple(req push.PushRequest, bundleID string) (EncodedRequest, error) {
	props := req.Push.Apple
	if props == nil {
		props = &push.ApplePushProps{}
	}

	headers, err := appleHeaders(props.Headers, bundleID)
	if err != nil {
		return EncodedRequest{}, err
	}

	if props.Headers.ApnsPushType == push.PushTypeBackground {
		if !props.ContentAvailable {
			return EncodedRequest{}, fmt.Errorf("%w: background push requires content-available=1", ErrInvalidRequest)
		}
		if props.Headers.ApnsPriority != 5 {
			return EncodedRequest{}, fmt.Errorf("%w: background push requires apns-priority=5", ErrInvalidRequest)
		}
		if props.Alert != nil || props.Badge != nil || props.Sound != nil {
			return EncodedRequest{}, fmt.Errorf("%w: background push must not carry alert, badge, or sound", ErrInvalidRequest)
		}
	}

	aps := map[string]interface{}{}
	if props.Alert != nil {
		aps["alert"] = encodeAlert(props.Alert)
	}
	if props.Badge != nil {
		aps["badge"] = *props.Badge
	}
	if props.Sound != nil {
		aps["sound"] = encodeSound(props.Sound)
	}
	if props.ThreadID != "" {
		aps["thread-id"] = props.ThreadID
	}
	if props.CategoryID != "" {
		aps["category"] = props.CategoryID
	}
	if props.ContentAvailable {
		aps["content-available"] = 1
	}
	if props.MutableContent {
		aps["mutable-content"] = 1
	}
	if props.TargetContentID != "" {
		aps["target-content-id"] = props.TargetContentID
	}
	if props.InterruptionLevel != "" {
		aps["interruption-level"] = string(props.InterruptionLevel)
	}
	if props.RelevanceScore != nil {
		aps["relevance-score"] = *props.RelevanceScore
	}
	if props.FilterCriteria != "" {
		aps["filter-criteria"] = props.FilterCriteria
	}
	if props.StaleDate != nil {
		if *props.StaleDate < 0 {
			return EncodedRequest{}, fmt.Errorf("%w: stale-date must be >= 0", ErrInvalidRequest)
		}
		aps["stale-date"] = *props.StaleDate
	}
	if props.ContentState != nil {
		aps["content-state"] = props.ContentState
	}
	if props.Timestamp != nil {
		if *props.Timestamp < 0 {
			return EncodedRequest{}, fmt.Errorf("%w: timestamp must be >= 0", ErrInvalidRequest)
		}
		aps["timestamp"] = *props.Timestamp
	}
	if props.Events != "" {
		aps["events"] = props.Events
	}
	if props.DismissalDate != nil {
		if *props.DismissalDate < 0 {
			return EncodedRequest{}, fmt.Errorf("%w: dismissal-date must be >= 0", ErrInvalidRequest)
		}
		aps["dismissal-date"] = *props.DismissalDate
	}

	body := map[string]interface{}{"aps": aps}
	if props.CustomData != nil {
		for _, k := range props.CustomData.Keys() {
			v, _ := props.CustomData.Get(k)
			if v.IsNull() {
				continue
			}
			body[k] = v
		}
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return EncodedRequest{}, fmt.Errorf("codec: failed to marshal apple payload: %w", err)
	}
	if len(encoded) > push.Apple.MaxPayloadBytes() {
		return EncodedRequest{}, ErrTooLarge
	}

	return EncodedRequest{Body: encoded, Headers: headers}, nil
}

func encodeAlert(a *push.ApnsAlert) interface{} {
	if a.Dict != nil {
		return a.Dict
	}
	return a.Text
}

func encodeSound(s *push.AppleSound) interface{} {
	if s.Dict != nil {
		return s.Dict
	}
	return s.Name
}

func appleHeaders(h push.ApplePushHeaders, bundleID string) (map[string]string, error) {
	headers := map[string]string{"apns-topic": bundleID}
	if h.ApnsTopicSuffix != "" {
		headers["apns-topic"] = bundleID + h.ApnsTopicSuffix
	}

	if h.ApnsID != "" {
		if _, err := uuid.Parse(h.ApnsID); err != nil {
			return nil, fmt.Errorf("%w: apns-id must be a UUID", ErrInvalidRequest)
		}
		headers["apns-id"] = h.ApnsID
	}
	if h.ApnsExpiration != nil {
		if *h.ApnsExpiration < 0 {
			return nil, fmt.Errorf("%w: apns-expiration must be >= 0", ErrInvalidRequest)
		}
		headers["apns-expiration"] = fmt.Sprintf("%d", *h.ApnsExpiration)
	}
	if h.ApnsPriority != 0 {
		headers["apns-priority"] = fmt.Sprintf("%d", h.ApnsPriority)
	}
	if h.ApnsPushType != "" {
		if !h.ApnsPushType.Valid() {
			return nil, fmt.Errorf("%w: invalid apns-push-type %q", ErrInvalidRequest, h.ApnsPushType)
		}
		headers["apns-push-type"] = string(h.ApnsPushType)
	}
	if h.ApnsCollapseID != "" {
		headers["apns-collapse-id"] = h.ApnsCollapseID
	}
	return headers, nil
}
