package push

import (
	"encoding/json"
	"fmt"
)

// Push is the vendor-tagged content of a PushRequest. Exactly one of
// Apple/Fcm/Web may be set; a Push with none set has Provider()==GENERIC.
type Push struct {
	Apple *ApplePushProps
	Fcm   *FcmPushProps
	Web   *WebPushProps
}

// pushWire is Push's wire shape: an object with at most one of the three
// vendor keys. A GENERIC push serializes as {}.
type pushWire struct {
	Apple *ApplePushProps `json:"apple,omitempty"`
	Fcm   *FcmPushProps   `json:"fcm,omitempty"`
	Web   *WebPushProps   `json:"web,omitempty"`
}

func (p Push) MarshalJSON() ([]byte, error) {
	return json.Marshal(pushWire{Apple: p.Apple, Fcm: p.Fcm, Web: p.Web})
}

// UnmarshalJSON rejects a payload naming more than one vendor sub-property
// (spec.md §8: "JSON with more than one vendor-specific sub-property fails
// to decode").
func (p *Push) UnmarshalJSON(data []byte) error {
	var w pushWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Push{Apple: w.Apple, Fcm: w.Fcm, Web: w.Web}
	if err := out.Validate(); err != nil {
		return err
	}
	*p = out
	return nil
}

// WebPushProps is the Web Push-specific payload content. Endpoint/P256dh/
// Auth are the browser's push subscription; the library encrypts the
// notification payload per-subscriber per RFC 8291 before sending.
type WebPushProps struct {
	Title    string            `json:"title,omitempty"`
	Body     string            `json:"body,omitempty"`
	Image    string            `json:"image,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
	Endpoint string            `json:"endpoint,omitempty"`
	P256dh   string            `json:"p256dh,omitempty"`
	Auth     string            `json:"auth,omitempty"`
}

// Provider reports the vendor this Push content is shaped for; a Push with
// zero vendor sub-properties is GENERIC.
func (p Push) Provider() Provider {
	set := 0
	var prov Provider
	if p.Apple != nil {
		set++
		prov = Apple
	}
	if p.Fcm != nil {
		set++
		prov = Firebase
	}
	if p.Web != nil {
		set++
		prov = Web
	}
	if set > 1 {
		return "" // invalid; caller should have rejected via Validate
	}
	if set == 0 {
		return Generic
	}
	return prov
}

// Validate enforces "more than one vendor sub-property fails" (spec.md §8).
func (p Push) Validate() error {
	set := 0
	if p.Apple != nil {
		set++
	}
	if p.Fcm != nil {
		set++
	}
	if p.Web != nil {
		set++
	}
	if set > 1 {
		return fmt.Errorf("push: a Push may carry at most one vendor-specific sub-property")
	}
	return nil
}

// RawPush is a pre-built JSON body the gateway forwards to the vendor
// unchanged, aside from the validation in spec.md §4.2.
type RawPush struct {
	Headers map[string]string `json:"headers,omitempty"`
	Content string            `json:"content"` // must parse as a JSON object
}

// PushRequest is a structured push addressed to a single device token.
type PushRequest struct {
	Provider       Provider          `json:"provider"`
	DeviceToken    string            `json:"deviceToken"`
	Push           Push              `json:"push"`
	IdempotencyKey string            `json:"idempotencyKey,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
	AppData        map[string]string `json:"appData,omitempty"`
}

// Validate enforces spec.md §3/§8's SendRequest invariants.
func (r PushRequest) Validate() error {
	if r.DeviceToken == "" {
		return fmt.Errorf("push: deviceToken must not be blank")
	}
	if r.Provider == Generic || !r.Provider.Valid() {
		return fmt.Errorf("push: provider must be a concrete vendor, not GENERIC")
	}
	if err := r.Push.Validate(); err != nil {
		return err
	}
	pushProvider := r.Push.Provider()
	if pushProvider != Generic && pushProvider != r.Provider {
		return fmt.Errorf("push: push.provider %q does not match request provider %q", pushProvider, r.Provider)
	}
	return nil
}

// RawPushRequest is a push whose body is caller-supplied JSON.
type RawPushRequest struct {
	Provider       Provider `json:"provider"`
	DeviceToken    string   `json:"deviceToken"`
	RawPush        RawPush  `json:"rawPush"`
	IdempotencyKey string   `json:"idempotencyKey,omitempty"`
}

func (r RawPushRequest) Validate() error {
	if r.DeviceToken == "" {
		return fmt.Errorf("push: deviceToken must not be blank")
	}
	if r.Provider == Generic || !r.Provider.Valid() {
		return fmt.Errorf("push: provider must be a concrete vendor, not GENERIC")
	}
	return nil
}
