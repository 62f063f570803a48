// Package codec builds and validates vendor wire payloads (C2): APNs JSON,
// FCM JSON, Web Push JSON, and raw pass-through bodies, each with its
// provider's size limit enforced locally before dispatch.
package codec

import "errors"

// ErrTooLarge is returned when an encoded payload exceeds its provider's
// limit; callers map it to push.StatusTooLargePayload.
var ErrTooLarge = errors.New("codec: payload exceeds provider size limit")

// ErrInvalidRequest is returned for payload shape violations the codec
// catches locally (e.g. background push invariants, malformed raw JSON).
var ErrInvalidRequest = errors.New("codec: invalid request")
