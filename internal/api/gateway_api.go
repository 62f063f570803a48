// Package api implements C9's upstream HTTP surface: the three routes
// spec.md §6 documents and nothing else, adapted from the teacher's
// internal/api/token_api.go handler shape (request decode, auth check,
// response.WriteJSONError on failure) generalized from token registration
// to push dispatch.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/internal/idempotency"
	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// GatewaySet is everything one {group}/{set} pair needs to serve the three
// upstream routes: the profile metadata (for auth and option resolution)
// and a ready-to-use Sender per provider it carries a profile for.
type GatewaySet struct {
	Profiles push.ProfileSet
	Senders  map[push.Provider]dispatch.Sender
}

// GatewayAPI serves spec.md §6's three routes across any number of
// registered profile sets.
type GatewayAPI struct {
	sets   map[string]GatewaySet
	logger *slog.Logger
}

// NewGatewayAPI builds the API over sets, keyed by "group/name" (see
// push.ProfileSet.Key).
func NewGatewayAPI(sets map[string]GatewaySet, logger *slog.Logger) *GatewayAPI {
	return &GatewayAPI{sets: sets, logger: logger}
}

func (a *GatewayAPI) lookup(r *http.Request) (GatewaySet, bool) {
	key := r.PathValue("group") + "/" + r.PathValue("set")
	gs, ok := a.sets[key]
	return gs, ok
}

// AuthorizeHandler implements GET /api/v1/{group}/{set}/authorize: 200 on
// credential valid, per spec.md §6.
func (a *GatewayAPI) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	gs, ok := a.lookup(r)
	if !ok {
		response.WriteJSONError(w, http.StatusNotFound, "unknown profile set")
		return
	}
	if !gs.Profiles.Authorize(r.Header.Get("Authorization")) {
		response.WriteJSONError(w, http.StatusUnauthorized, "invalid credential")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// SendHandler implements POST /api/v1/{group}/{set}/send: decodes a
// PushRequest, dispatches it, and returns the PushResult JSON with HTTP
// status mirroring the canonical status table (spec.md §6/§7).
func (a *GatewayAPI) SendHandler(w http.ResponseWriter, r *http.Request) {
	gs, ok := a.lookup(r)
	if !ok {
		response.WriteJSONError(w, http.StatusNotFound, "unknown profile set")
		return
	}
	if !gs.Profiles.Authorize(r.Header.Get("Authorization")) {
		response.WriteJSONError(w, http.StatusUnauthorized, "invalid credential")
		return
	}

	var req push.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sender, profile, ok := resolveSender(gs, req.Provider)
	if !ok {
		a.writeResult(w, push.PushResult{
			Status:       push.StatusProfileMissing,
			ResultSource: push.SourceClient,
			Reason:       "no profile configured for provider " + string(req.Provider),
		})
		return
	}

	retryOpts, totalTimeoutMs := resolveLocalOptions(profile)
	result := sender.Send(r.Context(), req, retryOpts, totalTimeoutMs)
	a.writeResult(w, result)
}

// SendRawHandler implements POST /api/v1/{group}/{set}/send/raw: decodes a
// RawPushRequest and forwards its pre-built JSON body unchanged.
func (a *GatewayAPI) SendRawHandler(w http.ResponseWriter, r *http.Request) {
	gs, ok := a.lookup(r)
	if !ok {
		response.WriteJSONError(w, http.StatusNotFound, "unknown profile set")
		return
	}
	if !gs.Profiles.Authorize(r.Header.Get("Authorization")) {
		response.WriteJSONError(w, http.StatusUnauthorized, "invalid credential")
		return
	}

	var req push.RawPushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := req.Validate(); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sender, profile, ok := resolveSender(gs, req.Provider)
	if !ok {
		a.writeResult(w, push.PushResult{
			Status:       push.StatusProfileMissing,
			ResultSource: push.SourceClient,
			Reason:       "no profile configured for provider " + string(req.Provider),
		})
		return
	}

	rawSender, ok := sender.(idempotency.RawSender)
	if !ok {
		a.writeResult(w, push.PushResult{
			Status:       push.StatusInvalidRequest,
			ResultSource: push.SourceClient,
			Reason:       "provider does not support raw push",
		})
		return
	}

	retryOpts, totalTimeoutMs := resolveLocalOptions(profile)
	result := rawSender.SendRaw(r.Context(), req, retryOpts, totalTimeoutMs)
	a.writeResult(w, result)
}

func resolveSender(gs GatewaySet, provider push.Provider) (dispatch.Sender, push.Profile, bool) {
	profile, ok := gs.Profiles.Lookup(provider)
	if !ok {
		return nil, push.Profile{}, false
	}
	sender, ok := gs.Senders[provider]
	if !ok {
		return nil, push.Profile{}, false
	}
	return sender, profile, true
}

func resolveLocalOptions(profile push.Profile) (push.RetryOptions, int64) {
	opts := profile.Options()
	retryOpts := push.DefaultRetryOptions()
	if opts.LocalRetryOptions != nil {
		retryOpts = *opts.LocalRetryOptions
	}
	var totalTimeoutMs int64
	if opts.LocalTotalTimeoutMs != nil {
		totalTimeoutMs = *opts.LocalTotalTimeoutMs
	}
	return retryOpts, totalTimeoutMs
}

func (a *GatewayAPI) writeResult(w http.ResponseWriter, result push.PushResult) {
	status := result.Status.HTTPStatus()
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if result.Cause != nil {
		a.logger.Debug("dispatch result", "status", result.Status, "cause", result.Cause)
	}
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(result); err != nil {
		a.logger.Error("failed to encode push result", "err", err)
	}
}
