// Package credentials implements C3: APNs bearer/mTLS auth material and
// FCM's OAuth2-via-signed-JWT access token exchange.
package credentials

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/sideshow/apns2/token"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// AppleAuth attaches the headers/transport material a dispatch needs for
// one Apple profile, on every request (spec.md §4.3).
type AppleAuth struct {
	bundleID string

	bearerToken *token.Token // non-nil for TokenCreds profiles
	tlsCert     *tls.Certificate
}

// NewAppleAuth parses the profile's credentials eagerly so configuration
// errors surface at construction, not at first dispatch.
func NewAppleAuth(profile push.AppleProfile) (*AppleAuth, error) {
	auth := &AppleAuth{bundleID: profile.BundleID}

	switch {
	case profile.Credentials.Token != nil:
		tc := profile.Credentials.Token
		authKey, err := token.AuthKeyFromBytes([]byte(tc.P8KeyContent))
		if err != nil {
			return nil, fmt.Errorf("credentials: failed to parse APNs p8 key: %w", err)
		}
		auth.bearerToken = &token.Token{
			AuthKey: authKey,
			KeyID:   tc.KeyID,
			TeamID:  tc.TeamID,
		}
	case profile.Credentials.KeyPair != nil:
		kp := profile.Credentials.KeyPair
		cert, err := buildTLSCertificate(kp.CertChain, kp.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("credentials: failed to load APNs key-pair cert: %w", err)
		}
		auth.tlsCert = cert
	default:
		return nil, fmt.Errorf("credentials: apple profile has no credentials")
	}

	return auth, nil
}

// Headers returns the per-request headers for this profile: apns-topic
// always, plus Authorization: Bearer for token-based profiles.
func (a *AppleAuth) Headers() map[string]string {
	headers := map[string]string{"apns-topic": a.bundleID}
	if a.bearerToken != nil {
		headers["authorization"] = "bearer " + a.bearerToken.GenerateIfExpired()
	}
	return headers
}

// ClientCertificate returns the mTLS certificate to configure the transport
// with, or nil for token-based profiles.
func (a *AppleAuth) ClientCertificate() *tls.Certificate {
	return a.tlsCert
}

func buildTLSCertificate(certChain [][]byte, privateKey []byte) (*tls.Certificate, error) {
	if len(certChain) == 0 {
		return nil, fmt.Errorf("credentials: cert chain must not be empty")
	}
	key, err := x509.ParsePKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("credentials: failed to parse private key: %w", err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("credentials: unsupported private key type %T", key)
	}
	cert := &tls.Certificate{
		Certificate: certChain,
		PrivateKey:  ecKey,
	}
	leaf, err := x509.ParseCertificate(certChain[0])
	if err != nil {
		return nil, fmt.Errorf("credentials: failed to parse leaf certificate: %w", err)
	}
	cert.Leaf = leaf
	return cert, nil
}
