package credentials

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/jwt"
	"golang.org/x/sync/singleflight"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

const (
	fcmScope        = "https://www.googleapis.com/auth/firebase.messaging"
	refreshSkew     = 3 * time.Minute
	exchangeTimeout = 5 * time.Second
)

// FCMTokenSource exchanges a service account for a short-lived OAuth2
// access token, caching it and refreshing ahead of expiry (spec.md §4.4).
// It never persists the signed JWT assertion it builds, only the access
// token Google hands back for it.
type FCMTokenSource struct {
	config *jwt.Config

	mu      sync.Mutex
	cached  *oauth2.Token
	flight  singleflight.Group
}

// NewFCMTokenSource builds the exchanger for one FirebaseProfile's service
// account. No exchange happens until AccessToken is first called.
func NewFCMTokenSource(sa push.ServiceAccount) (*FCMTokenSource, error) {
	if sa.ClientEmail == "" || sa.PrivateKey == "" || sa.TokenURI == "" {
		return nil, fmt.Errorf("credentials: incomplete FCM service account")
	}
	return &FCMTokenSource{
		config: &jwt.Config{
			Email:      sa.ClientEmail,
			PrivateKey: []byte(sa.PrivateKey),
			TokenURL:   sa.TokenURI,
			Scopes:     []string{fcmScope},
		},
	}, nil
}

// AccessToken returns a valid bearer token, exchanging a fresh one if the
// cached token is within refreshSkew of expiry. Concurrent callers for the
// same source collapse onto a single in-flight exchange.
func (s *FCMTokenSource) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	cached := s.cached
	s.mu.Unlock()

	if cached != nil && time.Until(cached.Expiry) > refreshSkew {
		return cached.AccessToken, nil
	}

	result, err, _ := s.flight.Do("exchange", func() (interface{}, error) {
		return s.exchange(ctx)
	})
	if err != nil {
		return "", err
	}
	tok := result.(*oauth2.Token)
	return tok.AccessToken, nil
}

func (s *FCMTokenSource) exchange(ctx context.Context) (*oauth2.Token, error) {
	var tok *oauth2.Token
	op := func() error {
		cctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
		defer cancel()
		t, err := s.config.TokenSource(cctx).Token()
		if err != nil {
			return err
		}
		tok = t
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	if err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isRetryableExchangeError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo); err != nil {
		return nil, fmt.Errorf("credentials: fcm token exchange failed: %w", err)
	}

	s.mu.Lock()
	s.cached = tok
	s.mu.Unlock()
	return tok, nil
}

// isRetryableExchangeError matches the transient statuses spec.md §4.4
// calls out: 500, 503, 408 and 429, plus requests that never reached the
// token endpoint at all.
func isRetryableExchangeError(err error) bool {
	retrieveErr, ok := err.(*oauth2.RetrieveError)
	if !ok {
		return true
	}
	switch retrieveErr.Response.StatusCode {
	case 500, 503, 408, 429:
		return true
	default:
		return false
	}
}
