// Package router selects the agent that handles a request. It consults the
// decision oracle once and never talks to tool providers.
package router

import "errors"

// ErrNoAgents is recorded when routing runs against an empty catalog.
var ErrNoAgents = errors.New("router: catalog has no agents")
