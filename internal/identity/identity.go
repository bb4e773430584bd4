package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const maxNameLength = 190

// ErrInvalidName indicates that a resolved identity is empty or exceeds storage bounds.
var ErrInvalidName = errors.New("identity: invalid name")

// Name is the resolved display identity of the current caller. The edit
// engine treats it as an opaque comparison key; producing it is the job of
// the surrounding auth layer.
type Name string

// NewName validates raw input and returns a Name.
func NewName(rawInput string) (Name, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if len(trimmed) > maxNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return Name(trimmed), nil
}

// String returns the underlying identity string.
func (n Name) String() string {
	return string(n)
}

// Resolver extracts the caller identity from an incoming request.
type Resolver interface {
	Resolve(request *http.Request) (Name, error)
}

// HeaderResolver trusts an identity header populated by an upstream
// authentication proxy.
type HeaderResolver struct {
	Header string
}

// Resolve reads and validates the configured header.
func (r HeaderResolver) Resolve(request *http.Request) (Name, error) {
	return NewName(request.Header.Get(r.Header))
}
