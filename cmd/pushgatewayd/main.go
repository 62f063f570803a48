// Command pushgatewayd is C9's minimal entrypoint: it wires one ProfileSet
// from environment variables and serves exactly the three routes spec.md
// §6 documents, adapted from the teacher's runnotificationservice.go
// startup sequence (slog setup, fail-fast client construction, optional
// Redis upgrade) with the pub/sub ingestion pipeline and token store
// replaced by the synchronous send path this gateway implements instead.
package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"

	"github.com/tinywideclouds/go-push-gateway/internal/api"
	"github.com/tinywideclouds/go-push-gateway/internal/credentials"
	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/internal/endpoint"
	"github.com/tinywideclouds/go-push-gateway/internal/idempotency"
	"github.com/tinywideclouds/go-push-gateway/internal/ratewindow"
	"github.com/tinywideclouds/go-push-gateway/internal/retrypolicy"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})).
		With("service", "pushgatewayd")
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("startup failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx := context.Background()

	store, closeStore, err := buildIdempotencyStore(logger)
	if err != nil {
		return err
	}
	defer closeStore()
	ttl := envDuration("IDEMPOTENCY_TTL", 24*time.Hour)

	profiles := push.ProfileSet{
		Group:   envOr("PROFILE_SET_GROUP", "default"),
		Name:    envOr("PROFILE_SET_NAME", "default"),
		Profiles: make(map[push.Provider]push.Profile),
		Inbound: push.InboundCredential{
			Scheme: push.AuthScheme(envOr("INBOUND_AUTH_SCHEME", "Bearer")),
			Token:  os.Getenv("INBOUND_ACCESS_TOKEN"),
		},
	}
	senders := make(map[push.Provider]dispatch.Sender)

	if appleProfile, ok := buildAppleProfile(); ok {
		profiles.Profiles[push.Apple] = push.Profile{Apple: &appleProfile}
		sender, err := buildAppleSender(ctx, appleProfile, logger)
		if err != nil {
			return err
		}
		senders[push.Apple] = idempotency.NewDecoratedSender(sender, store, ttl)
		logger.Info("apple dispatcher configured", "bundleId", appleProfile.BundleID)
	} else {
		logger.Warn("apple credentials not configured, APNS disabled")
	}

	if firebaseProfile, ok := buildFirebaseProfile(); ok {
		profiles.Profiles[push.Firebase] = push.Profile{Firebase: &firebaseProfile}
		sender, err := buildFirebaseSender(ctx, firebaseProfile, logger)
		if err != nil {
			return err
		}
		senders[push.Firebase] = idempotency.NewDecoratedSender(sender, store, ttl)
		logger.Info("firebase dispatcher configured", "projectId", firebaseProfile.ServiceAccount.ProjectID)
	} else {
		logger.Warn("firebase service account not configured, FCM disabled")
	}

	if webProfile, ok := buildWebProfile(); ok {
		profiles.Profiles[push.Web] = push.Profile{Web: &webProfile}
		sender := dispatch.NewWebDispatcher(webProfile, &http.Client{}, mustEngine(), buildRateLimiter(), logger)
		senders[push.Web] = idempotency.NewDecoratedSender(sender, store, ttl)
		logger.Info("web push dispatcher configured")
	} else {
		logger.Warn("VAPID keys not configured, Web Push disabled")
	}

	if pushsphereProfile, ok := buildPushsphereProfile(); ok {
		profiles.Profiles[push.Generic] = push.Profile{Pushsphere: &pushsphereProfile}
		sender, err := buildPushsphereSender(ctx, pushsphereProfile, logger)
		if err != nil {
			return err
		}
		senders[push.Generic] = idempotency.NewDecoratedSender(sender, store, ttl)
		logger.Info("pushsphere relay dispatcher configured", "target", pushsphereProfile.ProfileSetGroup+"/"+pushsphereProfile.ProfileSet)
	}

	gatewayAPI := api.NewGatewayAPI(map[string]api.GatewaySet{
		profiles.Key(): {Profiles: profiles, Senders: senders},
	}, logger)

	addr := envOr("LISTEN_ADDR", ":8080")
	baseServer := microservice.NewBaseServer(logger, addr)
	mux := baseServer.Mux()
	mux.HandleFunc("GET /api/v1/{group}/{set}/authorize", gatewayAPI.AuthorizeHandler)
	mux.HandleFunc("POST /api/v1/{group}/{set}/send", gatewayAPI.SendHandler)
	mux.HandleFunc("POST /api/v1/{group}/{set}/send/raw", gatewayAPI.SendRawHandler)

	logger.Info("pushgatewayd listening", "addr", addr)
	return baseServer.Start()
}

func buildIdempotencyStore(logger *slog.Logger) (idempotency.Store, func(), error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		logger.Info("idempotency store", "backend", "memory")
		return idempotency.NewMemoryStore(), func() {}, nil
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisStore, err := idempotency.NewRedisStore(addr, os.Getenv("REDIS_PASSWORD"), db)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("idempotency store", "backend", "redis", "addr", addr)
	return redisStore, func() { _ = redisStore.Close() }, nil
}

func buildAppleProfile() (push.AppleProfile, bool) {
	bundleID := os.Getenv("APNS_BUNDLE_ID")
	keyID := os.Getenv("APNS_KEY_ID")
	teamID := os.Getenv("APNS_TEAM_ID")
	p8Key := os.Getenv("APNS_P8_KEY")
	if bundleID == "" || keyID == "" || teamID == "" || p8Key == "" {
		return push.AppleProfile{}, false
	}
	return push.AppleProfile{
		Endpoint: envOr("APNS_ENDPOINT", "api.push.apple.com:443"),
		BundleID: bundleID,
		Credentials: push.AppleCredentials{
			Token: &push.TokenCreds{KeyID: keyID, TeamID: teamID, P8KeyContent: p8Key},
		},
	}, true
}

func buildAppleSender(ctx context.Context, profile push.AppleProfile, logger *slog.Logger) (dispatch.Sender, error) {
	auth, err := credentials.NewAppleAuth(profile)
	if err != nil {
		return nil, err
	}
	group, err := buildGroup(ctx, profile.Endpoint)
	if err != nil {
		return nil, err
	}
	client, closeFn, err := dispatch.NewHTTP2Client(dispatch.TransportOptions{ClientCertificate: auth.ClientCertificate()})
	if err != nil {
		return nil, err
	}
	engine, err := retrypolicy.NewEngine()
	if err != nil {
		return nil, err
	}
	encoder := &dispatch.AppleEncoder{BundleID: profile.BundleID, Auth: auth}
	return dispatch.New(client, closeFn, group, engine, buildRateLimiter(), encoder, dispatch.Hooks{}, logger), nil
}

func buildFirebaseProfile() (push.FirebaseProfile, bool) {
	projectID := os.Getenv("FCM_PROJECT_ID")
	clientEmail := os.Getenv("FCM_CLIENT_EMAIL")
	privateKey := os.Getenv("FCM_PRIVATE_KEY")
	if projectID == "" || clientEmail == "" || privateKey == "" {
		return push.FirebaseProfile{}, false
	}
	return push.FirebaseProfile{
		Endpoint: envOr("FCM_ENDPOINT", "fcm.googleapis.com:443"),
		ServiceAccount: push.ServiceAccount{
			ClientEmail: clientEmail,
			PrivateKey:  privateKey,
			TokenURI:    envOr("FCM_TOKEN_URI", "https://oauth2.googleapis.com/token"),
			ProjectID:   projectID,
		},
	}, true
}

func buildFirebaseSender(ctx context.Context, profile push.FirebaseProfile, logger *slog.Logger) (dispatch.Sender, error) {
	tokenSource, err := credentials.NewFCMTokenSource(profile.ServiceAccount)
	if err != nil {
		return nil, err
	}
	group, err := buildGroup(ctx, profile.Endpoint)
	if err != nil {
		return nil, err
	}
	client, closeFn, err := dispatch.NewHTTP2Client(dispatch.TransportOptions{})
	if err != nil {
		return nil, err
	}
	engine, err := retrypolicy.NewEngine()
	if err != nil {
		return nil, err
	}
	encoder := &dispatch.FirebaseEncoder{ProjectID: profile.ServiceAccount.ProjectID, TokenSource: tokenSource}
	return dispatch.New(client, closeFn, group, engine, buildRateLimiter(), encoder, dispatch.Hooks{}, logger), nil
}

func buildWebProfile() (push.WebPushProfile, bool) {
	public := os.Getenv("WEBPUSH_VAPID_PUBLIC_KEY")
	private := os.Getenv("WEBPUSH_VAPID_PRIVATE_KEY")
	if public == "" || private == "" {
		return push.WebPushProfile{}, false
	}
	return push.WebPushProfile{
		VAPIDPublicKey:  public,
		VAPIDPrivateKey: private,
		VAPIDSubscriber: envOr("WEBPUSH_VAPID_SUBJECT", "mailto:admin@example.com"),
	}, true
}

func buildPushsphereProfile() (push.PushsphereProfile, bool) {
	endpoint := os.Getenv("PUSHSPHERE_ENDPOINT")
	targetGroup := os.Getenv("PUSHSPHERE_TARGET_GROUP")
	targetSet := os.Getenv("PUSHSPHERE_TARGET_SET")
	if endpoint == "" || targetGroup == "" || targetSet == "" {
		return push.PushsphereProfile{}, false
	}
	return push.PushsphereProfile{
		Endpoint:        endpoint,
		AuthScheme:      push.AuthScheme(envOr("PUSHSPHERE_AUTH_SCHEME", "Bearer")),
		AccessToken:     os.Getenv("PUSHSPHERE_ACCESS_TOKEN"),
		ProfileSetGroup: targetGroup,
		ProfileSet:      targetSet,
	}, true
}

func buildPushsphereSender(ctx context.Context, profile push.PushsphereProfile, logger *slog.Logger) (dispatch.Sender, error) {
	group, err := buildGroup(ctx, profile.Endpoint)
	if err != nil {
		return nil, err
	}
	client, closeFn, err := dispatch.NewHTTP2Client(dispatch.TransportOptions{})
	if err != nil {
		return nil, err
	}
	engine, err := retrypolicy.NewEngine()
	if err != nil {
		return nil, err
	}
	encoder := &dispatch.PushsphereEncoder{Profile: profile}
	return dispatch.New(client, closeFn, group, engine, buildRateLimiter(), encoder, dispatch.Hooks{}, logger), nil
}

func buildGroup(ctx context.Context, addr string) (*endpoint.Group, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	group := endpoint.NewGroup(endpoint.NewDNSResolver(host, port), endpoint.Options{})
	group.Start(ctx)
	return group, nil
}

// buildRateLimiter constructs C5 rule 1's retry-budget gate from env config
// (spec.md §4.5: max(requestRate*ratio, minimumRetryCount) - retryRate).
// RETRY_RATE_LIMIT_THRESHOLD_RATIO defaults to -1, which disables the gate,
// matching DefaultRetryOptions' equally conservative engine defaults; set it
// to a value >= 0 to turn the budget on. Each dispatcher gets its own
// limiter so one vendor's retry storm doesn't starve another's budget.
func buildRateLimiter() *retrypolicy.RateLimiter {
	opts := push.RetryRateLimitOptions{
		WindowNanos:         envDuration("RETRY_RATE_LIMIT_WINDOW", time.Second).Nanoseconds(),
		MinimumRetryCount:   envFloat("RETRY_RATE_LIMIT_MIN_COUNT", 0),
		RetryThresholdRatio: envFloat("RETRY_RATE_LIMIT_THRESHOLD_RATIO", -1),
	}
	return retrypolicy.NewRateLimiter(opts, ratewindow.SystemTicker{})
}

func mustEngine() *retrypolicy.Engine {
	engine, err := retrypolicy.NewEngine()
	if err != nil {
		panic(err)
	}
	return engine
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
