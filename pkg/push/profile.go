package push

import (
	"fmt"
	"strings"
)

// RetryAfterStrategy controls how the retry engine reacts to a vendor
// Retry-After header.
type RetryAfterStrategy string

const (
	RetryAfterNoRetry RetryAfterStrategy = "NO_RETRY"
	RetryAfterIgnore  RetryAfterStrategy = "IGNORE"
	RetryAfterComply  RetryAfterStrategy = "COMPLY"
)

// Policy is a named retry rule evaluated against a response/exception.
type Policy string

const (
	PolicyClientError  Policy = "CLIENT_ERROR"
	PolicyServerError  Policy = "SERVER_ERROR"
	PolicyTimeout      Policy = "TIMEOUT"
	PolicyOnException  Policy = "ON_EXCEPTION"
	PolicyOnUnprocessed Policy = "ON_UNPROCESSED"
	PolicyFCMDefault   Policy = "FCM_DEFAULT"
)

// HTTPStatusOption dictates retry behavior for a set of HTTP statuses,
// checked before the generic Policy rules.
type HTTPStatusOption struct {
	Statuses []int
	Backoff  string // backoff spec string; empty means default exponential
	NoRetry  bool
}

// Matches reports whether status is covered by this option.
func (o HTTPStatusOption) Matches(status int) bool {
	for _, s := range o.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// RetryOptions configures the per-attempt retry behavior for a dispatch.
type RetryOptions struct {
	MaxAttempts         int
	BackoffSpec         string
	TimeoutPerAttemptMs int64
	RetryPolicies       []Policy
	HTTPStatusOptions   []HTTPStatusOption
	RetryAfterStrategy  RetryAfterStrategy
}

// DefaultRetryOptions returns the engine-level fallback, used as a whole
// when the profile has no LocalRetryOptions. Fields are not merged one by
// one: a profile's LocalRetryOptions replaces these defaults entirely.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:         1,
		BackoffSpec:         "exponential=500:10000:2.0",
		TimeoutPerAttemptMs: 5000,
		RetryAfterStrategy:  RetryAfterIgnore,
	}
}

// RetryRateLimitOptions gates retries against a sliding-window request/retry
// rate budget (C5 rule 1).
type RetryRateLimitOptions struct {
	WindowNanos        int64
	MinimumRetryCount  float64
	RetryThresholdRatio float64 // < 0 disables the gate
}

// PushOptions carries retry and timeout options on a profile. The gateway
// API reads the local fields from the profile and passes them to the
// sender's Send; nothing attaches PushOptions to a request's context, and
// there is no per-request override.
type PushOptions struct {
	LocalRetryOptions    *RetryOptions
	LocalTotalTimeoutMs  *int64
	RemoteRetryOptions   *RetryOptions
	RemoteTotalTimeoutMs *int64
}

// AppleCredentials is a tagged variant: exactly one of TokenCreds or
// KeyPairCreds is populated.
type AppleCredentials struct {
	Token   *TokenCreds
	KeyPair *KeyPairCreds
}

// TokenCreds is APNs bearer-token (JWT ES256) auth material.
type TokenCreds struct {
	KeyID        string
	TeamID       string
	P8KeyContent string
}

// KeyPairCreds is APNs mTLS auth material.
type KeyPairCreds struct {
	CertChain  [][]byte
	PrivateKey []byte
}

// AppleProfile routes and authenticates to APNs for one bundle ID.
type AppleProfile struct {
	Endpoint    string
	BundleID    string
	Credentials AppleCredentials
	Options     PushOptions
}

func (p AppleProfile) validate() error {
	if p.Endpoint == "" {
		return fmt.Errorf("push: apple profile endpoint must be set")
	}
	if p.BundleID == "" {
		return fmt.Errorf("push: apple profile bundleId must be set")
	}
	hasToken := p.Credentials.Token != nil
	hasKeyPair := p.Credentials.KeyPair != nil
	if hasToken == hasKeyPair {
		return fmt.Errorf("push: apple profile requires exactly one of token or key-pair credentials")
	}
	if hasKeyPair && len(p.Credentials.KeyPair.CertChain) == 0 {
		return fmt.Errorf("push: apple key-pair credentials require a non-empty cert chain")
	}
	return validateRetryOptions(p.Options)
}

// ServiceAccount is the subset of a GCP service-account JSON key needed to
// mint an OAuth2 access token via a signed JWT assertion.
type ServiceAccount struct {
	ClientEmail string
	PrivateKey  string
	TokenURI    string
	ProjectID   string
}

// FirebaseProfile routes and authenticates to FCM for one GCP project.
type FirebaseProfile struct {
	Endpoint       string
	ServiceAccount ServiceAccount
	Options        PushOptions
}

func (p FirebaseProfile) validate() error {
	if p.Endpoint == "" {
		return fmt.Errorf("push: firebase profile endpoint must be set")
	}
	if p.ServiceAccount.ClientEmail == "" || p.ServiceAccount.PrivateKey == "" {
		return fmt.Errorf("push: firebase profile requires a service account")
	}
	return validateRetryOptions(p.Options)
}

// WebPushProfile routes and authenticates VAPID-signed Web Push. Added
// beyond spec.md's Profile variants; see SPEC_FULL.md §3.1.
type WebPushProfile struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubscriber string
	Options         PushOptions
}

func (p WebPushProfile) validate() error {
	if p.VAPIDPublicKey == "" || p.VAPIDPrivateKey == "" {
		return fmt.Errorf("push: webpush profile requires a VAPID key pair")
	}
	return validateRetryOptions(p.Options)
}

// AuthScheme is the scheme half of a Pushsphere relay Authorization header.
type AuthScheme string

// PushsphereProfile forwards a push to another gateway instance.
type PushsphereProfile struct {
	Endpoint        string
	EndpointGroup   string // optional
	AuthScheme      AuthScheme
	AccessToken     string
	ProfileSetGroup string
	ProfileSet      string
	Options         PushOptions
}

func (p PushsphereProfile) validate() error {
	if p.Endpoint == "" {
		return fmt.Errorf("push: pushsphere profile endpoint must be set")
	}
	if p.ProfileSetGroup == "" || p.ProfileSet == "" {
		return fmt.Errorf("push: pushsphere profile requires a target profile set")
	}
	return validateRetryOptions(p.Options)
}

func validateRetryOptions(opts PushOptions) error {
	ro := opts.LocalRetryOptions
	if ro == nil {
		return nil
	}
	if ro.MaxAttempts > 1 && len(ro.RetryPolicies) == 0 && len(ro.HTTPStatusOptions) == 0 {
		return fmt.Errorf("push: maxAttempts>1 requires a non-empty retry policy set")
	}
	return nil
}

// Profile is a tagged variant over the four profile kinds. Exactly one
// field is non-nil.
type Profile struct {
	Apple      *AppleProfile
	Firebase   *FirebaseProfile
	Web        *WebPushProfile
	Pushsphere *PushsphereProfile
}

// Options returns the PushOptions of whichever variant is set, or the zero
// value if none is.
func (p Profile) Options() PushOptions {
	switch {
	case p.Apple != nil:
		return p.Apple.Options
	case p.Firebase != nil:
		return p.Firebase.Options
	case p.Web != nil:
		return p.Web.Options
	case p.Pushsphere != nil:
		return p.Pushsphere.Options
	default:
		return PushOptions{}
	}
}

// Provider reports which provider this profile serves.
func (p Profile) Provider() Provider {
	switch {
	case p.Apple != nil:
		return Apple
	case p.Firebase != nil:
		return Firebase
	case p.Web != nil:
		return Web
	case p.Pushsphere != nil:
		return Generic
	default:
		return ""
	}
}

// Validate checks the profile's invariants (spec.md §3).
func (p Profile) Validate() error {
	set := 0
	var err error
	if p.Apple != nil {
		set++
		err = p.Apple.validate()
	}
	if p.Firebase != nil {
		set++
		if e := p.Firebase.validate(); e != nil {
			err = e
		}
	}
	if p.Web != nil {
		set++
		if e := p.Web.validate(); e != nil {
			err = e
		}
	}
	if p.Pushsphere != nil {
		set++
		if e := p.Pushsphere.validate(); e != nil {
			err = e
		}
	}
	if set != 1 {
		return fmt.Errorf("push: profile must set exactly one vendor variant, got %d", set)
	}
	return err
}

// InboundCredential is the Authorization header this gateway instance
// requires of every caller of one ProfileSet's upstream HTTP routes
// (spec.md §6: "scheme case-insensitive against what the authorizer
// supports"). Not part of spec.md's Profile model; added to give the
// §6 authorize route and the send/send-raw routes something concrete
// to check (SPEC_FULL.md §12 Open Question decision).
type InboundCredential struct {
	Scheme AuthScheme
	Token  string
}

// ProfileSet bundles at most one profile per provider, addressable by
// group/name.
type ProfileSet struct {
	Group    string
	Name     string
	Profiles map[Provider]Profile
	Inbound  InboundCredential
}

func (ps ProfileSet) Key() string {
	return ps.Group + "/" + ps.Name
}

// Authorize checks a raw Authorization header value against this set's
// InboundCredential: "<scheme> <parameters>", whitespace-separated, two
// non-empty components, scheme matched case-insensitively (spec.md §6).
func (ps ProfileSet) Authorize(header string) bool {
	fields := strings.Fields(header)
	if len(fields) != 2 {
		return false
	}
	scheme, parameters := fields[0], fields[1]
	return strings.EqualFold(scheme, string(ps.Inbound.Scheme)) && parameters == ps.Inbound.Token
}

// Lookup returns the profile for provider, or (Profile{}, false) if the set
// carries no profile for it (maps to PROFILE_MISSING at dispatch time).
func (ps ProfileSet) Lookup(provider Provider) (Profile, bool) {
	p, ok := ps.Profiles[provider]
	return p, ok
}
