package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrCatalogParse is wrapped by every ParseError.
	ErrCatalogParse = errors.New("catalog: malformed agent descriptor")
	// ErrAgentNotFound is returned when a requested agent name is not catalogued.
	ErrAgentNotFound = errors.New("catalog: agent not found")
)

// ParseError reports one catalog entry that was skipped during discovery.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrCatalogParse, e.Key, e.Err)
}

// Unwrap lets errors.Is match both ErrCatalogParse and the underlying cause.
func (e *ParseError) Unwrap() []error {
	return []error{ErrCatalogParse, e.Err}
}
