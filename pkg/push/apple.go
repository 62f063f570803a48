package push

import (
	"bytes"
	"encoding/json"
)

// ApnsAlert is a tagged variant: either a plain string alert or a structured
// alert dict. Exactly one of Text or Dict is set when non-zero.
type ApnsAlert struct {
	Text string
	Dict *ApplePushAlert
}

// MarshalJSON emits the string form when only Text is set, the dict form
// otherwise (spec.md §4.2's "alert serialized as a string or an object").
func (a ApnsAlert) MarshalJSON() ([]byte, error) {
	if a.Dict != nil {
		return json.Marshal(a.Dict)
	}
	return json.Marshal(a.Text)
}

func (a *ApnsAlert) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*a = ApnsAlert{Text: s}
		return nil
	}
	var dict ApplePushAlert
	if err := json.Unmarshal(trimmed, &dict); err != nil {
		return err
	}
	*a = ApnsAlert{Dict: &dict}
	return nil
}

// ApplePushAlert is the structured alert dictionary (aps.alert object form).
type ApplePushAlert struct {
	Title          string   `json:"title,omitempty"`
	Subtitle       string   `json:"subtitle,omitempty"`
	Body           string   `json:"body,omitempty"`
	LaunchImage    string   `json:"launch-image,omitempty"`
	TitleLocKey    string   `json:"title-loc-key,omitempty"`
	TitleLocArgs   []string `json:"title-loc-args,omitempty"`
	SubtitleLocKey string   `json:"subtitle-loc-key,omitempty"`
	SubtitleLocArgs []string `json:"subtitle-loc-args,omitempty"`
	LocKey         string   `json:"loc-key,omitempty"`
	LocArgs        []string `json:"loc-args,omitempty"`
}

// AppleSound is a tagged variant: a plain string sound name, or a critical
// sound dict.
type AppleSound struct {
	Name string
	Dict *AppleCriticalSound
}

func (s AppleSound) MarshalJSON() ([]byte, error) {
	if s.Dict != nil {
		return json.Marshal(s.Dict)
	}
	return json.Marshal(s.Name)
}

func (s *AppleSound) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var name string
		if err := json.Unmarshal(trimmed, &name); err != nil {
			return err
		}
		*s = AppleSound{Name: name}
		return nil
	}
	var dict AppleCriticalSound
	if err := json.Unmarshal(trimmed, &dict); err != nil {
		return err
	}
	*s = AppleSound{Dict: &dict}
	return nil
}

type AppleCriticalSound struct {
	Critical bool    `json:"critical,omitempty"`
	Name     string  `json:"name,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
}

// InterruptionLevel is one of the four APNs interruption levels.
type InterruptionLevel string

const (
	InterruptionPassive       InterruptionLevel = "passive"
	InterruptionActive        InterruptionLevel = "active"
	InterruptionTimeSensitive InterruptionLevel = "time-sensitive"
	InterruptionCritical      InterruptionLevel = "critical"
)

// ApnsPushType is one of the nine APNs push types (apns-push-type header).
type ApnsPushType string

const (
	PushTypeAlert        ApnsPushType = "alert"
	PushTypeBackground   ApnsPushType = "background"
	PushTypeLocation     ApnsPushType = "location"
	PushTypeVoIP         ApnsPushType = "voip"
	PushTypeComplication ApnsPushType = "complication"
	PushTypeFileProvider ApnsPushType = "fileprovider"
	PushTypeMDM          ApnsPushType = "mdm"
	PushTypeLiveActivity ApnsPushType = "liveactivity"
	PushTypePushToTalk   ApnsPushType = "pushtotalk"
)

func (t ApnsPushType) Valid() bool {
	switch t {
	case PushTypeAlert, PushTypeBackground, PushTypeLocation, PushTypeVoIP,
		PushTypeComplication, PushTypeFileProvider, PushTypeMDM,
		PushTypeLiveActivity, PushTypePushToTalk:
		return true
	default:
		return false
	}
}

// ApplePushHeaders carries the APNs HTTP/2 headers the caller may set
// explicitly; zero values mean "not set" except where noted.
type ApplePushHeaders struct {
	ApnsID          string       `json:"apnsId,omitempty"` // must be a UUID if set
	ApnsExpiration  *int64       `json:"apnsExpiration,omitempty"`
	ApnsPriority    int          `json:"apnsPriority,omitempty"`
	ApnsPushType    ApnsPushType `json:"apnsPushType,omitempty"`
	ApnsCollapseID  string       `json:"apnsCollapseId,omitempty"`
	ApnsTopicSuffix string       `json:"apnsTopicSuffix,omitempty"` // appended to the profile's bundleId for e.g. voip
}

// ApplePushProps is the APNs-specific payload content (the "aps" object
// plus custom top-level data).
type ApplePushProps struct {
	Alert              *ApnsAlert        `json:"alert,omitempty"`
	Badge              *int              `json:"badge,omitempty"`
	Sound              *AppleSound       `json:"sound,omitempty"`
	ThreadID           string            `json:"threadId,omitempty"`
	CategoryID         string            `json:"categoryId,omitempty"`
	ContentAvailable   bool              `json:"contentAvailable,omitempty"`
	MutableContent     bool              `json:"mutableContent,omitempty"`
	TargetContentID    string            `json:"targetContentId,omitempty"`
	InterruptionLevel  InterruptionLevel `json:"interruptionLevel,omitempty"`
	RelevanceScore     *float64          `json:"relevanceScore,omitempty"`
	FilterCriteria     string            `json:"filterCriteria,omitempty"`
	StaleDate          *int64            `json:"staleDate,omitempty"`
	ContentState       *Map              `json:"contentState,omitempty"`
	Timestamp          *int64            `json:"timestamp,omitempty"`
	Events             string            `json:"events,omitempty"`
	DismissalDate      *int64            `json:"dismissalDate,omitempty"`
	Headers            ApplePushHeaders  `json:"headers,omitempty"`
	CustomData         *Map              `json:"customData,omitempty"`
}
