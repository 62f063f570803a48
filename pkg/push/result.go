package push

import "encoding/json"

// Status is the canonical result taxonomy (spec.md §7).
type Status string

const (
	StatusSuccess               Status = "SUCCESS"
	StatusInvalidRequest        Status = "INVALID_REQUEST"
	StatusAuthFailure           Status = "AUTH_FAILURE"
	StatusDeviceUnregistered    Status = "DEVICE_UNREGISTERED"
	StatusTooLargePayload       Status = "TOO_LARGE_PAYLOAD"
	StatusQuotaExceeded         Status = "QUOTA_EXCEEDED"
	StatusInternalError         Status = "INTERNAL_ERROR"
	StatusProfileMissing        Status = "PROFILE_MISSING"
	StatusUnavailable           Status = "UNAVAILABLE"
	StatusInvalidServerResponse Status = "INVALID_SERVER_RESPONSE"
	StatusUnknown               Status = "UNKNOWN"
)

// HTTPStatus returns the HTTP status the gateway API reports for this
// canonical status (spec.md §7's table).
func (s Status) HTTPStatus() int {
	switch s {
	case StatusSuccess:
		return 200
	case StatusInvalidRequest:
		return 400
	case StatusAuthFailure:
		return 401
	case StatusDeviceUnregistered:
		return 410
	case StatusTooLargePayload:
		return 413
	case StatusQuotaExceeded:
		return 429
	case StatusInternalError:
		return 500
	case StatusProfileMissing:
		return 501
	case StatusUnavailable:
		return 503
	case StatusInvalidServerResponse:
		return 520
	default:
		return 0
	}
}

// ResultSource attributes a result to where it was decided.
type ResultSource string

const (
	SourceClient       ResultSource = "CLIENT"
	SourceServer       ResultSource = "SERVER"
	SourcePushProvider ResultSource = "PUSH_PROVIDER"
)

// ApplePushResultProps carries APNs-specific result fields.
type ApplePushResultProps struct {
	ApnsID       string `json:"apnsId,omitempty"`
	ApnsUniqueID string `json:"apnsUniqueId,omitempty"`
	Reason       string `json:"reason,omitempty"`
	RetryAfter   *int64 `json:"retryAfter,omitempty"`
}

// FcmPushResultProps carries FCM-specific result fields.
type FcmPushResultProps struct {
	MessageID  string           `json:"messageId,omitempty"`
	Error      *FcmErrorDetails `json:"error,omitempty"`
	RetryAfter *int64           `json:"retryAfter,omitempty"`
}

// WebPushResultProps carries Web Push-specific result fields.
type WebPushResultProps struct {
	RetryAfter *int64 `json:"retryAfter,omitempty"`
}

// PushResultProps is a tagged variant over per-vendor result fields.
type PushResultProps struct {
	Apple *ApplePushResultProps
	Fcm   *FcmPushResultProps
	Web   *WebPushResultProps
}

type pushResultPropsWire struct {
	Apple *ApplePushResultProps `json:"apple,omitempty"`
	Fcm   *FcmPushResultProps   `json:"fcm,omitempty"`
	Web   *WebPushResultProps   `json:"web,omitempty"`
}

func (p PushResultProps) MarshalJSON() ([]byte, error) {
	return json.Marshal(pushResultPropsWire{Apple: p.Apple, Fcm: p.Fcm, Web: p.Web})
}

func (p *PushResultProps) UnmarshalJSON(data []byte) error {
	var w pushResultPropsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = PushResultProps{Apple: w.Apple, Fcm: w.Fcm, Web: w.Web}
	return nil
}

// PushResult is the uniform outcome of a dispatch attempt chain.
type PushResult struct {
	Status       Status           `json:"status"`
	ResultSource ResultSource     `json:"resultSource"`
	Reason       string           `json:"reason,omitempty"`
	Cause        error            `json:"-"` // retained in-memory only; never serialized
	Props        *PushResultProps `json:"pushResultProps,omitempty"`
	HTTPStatus   *int             `json:"httpStatus,omitempty"`
}
