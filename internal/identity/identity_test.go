package identity

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewNameTrimsWhitespace(t *testing.T) {
	name, err := NewName("  editor-one  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name.String() != "editor-one" {
		t.Fatalf("unexpected name %q", name.String())
	}
}

func TestNewNameRejectsEmptyInput(t *testing.T) {
	if _, err := NewName("   "); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestNewNameRejectsOversizedInput(t *testing.T) {
	if _, err := NewName(strings.Repeat("x", maxNameLength+1)); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}

func TestHeaderResolverResolvesConfiguredHeader(t *testing.T) {
	resolver := HeaderResolver{Header: "X-Folio-User"}
	request := httptest.NewRequest("GET", "/", nil)
	request.Header.Set("X-Folio-User", "editor-two")

	name, err := resolver.Resolve(request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name.String() != "editor-two" {
		t.Fatalf("unexpected name %q", name.String())
	}
}

func TestHeaderResolverRejectsMissingHeader(t *testing.T) {
	resolver := HeaderResolver{Header: "X-Folio-User"}
	request := httptest.NewRequest("GET", "/", nil)

	if _, err := resolver.Resolve(request); !errors.Is(err, ErrInvalidName) {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
}
