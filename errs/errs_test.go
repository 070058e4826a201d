package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesVenueAndEndpoint(t *testing.T) {
	err := New(
		"talos",
		CodeNotFound,
		WithHTTP(404),
		WithEndpoint("/v1/orders"),
		WithMessage("list-orders path rejected"),
		WithCause(errors.New("talos http 404")),
	)

	out := err.Error()
	if !strings.Contains(out, "venue=talos") {
		t.Fatalf("expected venue marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=not_found") {
		t.Fatalf("expected code in error string: %s", out)
	}
	if !strings.Contains(out, "http=404") {
		t.Fatalf("expected http status in error string: %s", out)
	}
	if !strings.Contains(out, "endpoint=\"/v1/orders\"") {
		t.Fatalf("expected endpoint in error string: %s", out)
	}
	if !strings.Contains(out, "cause=\"talos http 404\"") {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := New("talos", CodeNetwork, WithCause(cause))
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find cause through envelope")
	}
}

func TestIsCodeWalksWrappedChain(t *testing.T) {
	inner := New("talos", CodeNotFound, WithHTTP(404))
	wrapped := fmt.Errorf("fetch page: %w", inner)
	if !IsCode(wrapped, CodeNotFound) {
		t.Fatalf("expected IsCode to match through fmt.Errorf wrapping")
	}
	if IsCode(wrapped, CodeNetwork) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(errors.New("plain"), CodeNotFound) {
		t.Fatalf("plain errors must not match any code")
	}
}
