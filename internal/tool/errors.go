package tool

import (
	"errors"
	"fmt"
)

var (
	// ErrUnregisteredTool is returned when (server, tool) does not resolve in
	// the registry. No network call is attempted.
	ErrUnregisteredTool = errors.New("tool not registered")

	// ErrUnknownServerHost is returned when a server has no base URL in the
	// server map. No network call is attempted.
	ErrUnknownServerHost = errors.New("unknown tool server host")

	// ErrUpstream is wrapped by every UpstreamError.
	ErrUpstream = errors.New("tool server call failed")

	// ErrManifest is returned for a manifest that cannot be used.
	ErrManifest = errors.New("invalid tool manifest")
)

// UpstreamError reports a non-2xx response or a transport failure from a
// tool server. Status is zero for transport failures.
type UpstreamError struct {
	Server string
	Tool   string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s/%s: HTTP %d: %s", e.Server, e.Tool, e.Status, e.Body)
	}
	return fmt.Sprintf("%s/%s: %v", e.Server, e.Tool, e.Err)
}

// Unwrap exposes ErrUpstream and the transport cause to errors.Is.
func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}
