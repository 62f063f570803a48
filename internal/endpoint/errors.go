package endpoint

import "errors"

// ErrNoEndpoint is returned by Select when the active set is empty, there
// are no bad endpoints to fall back to (or failFastOnAllCircuitOpen is
// set), and the caller should not wait further.
var ErrNoEndpoint = errors.New("endpoint: no endpoint available")
