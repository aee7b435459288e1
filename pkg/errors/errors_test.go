package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestWrap(t *testing.T) {
	if Wrap(nil, "msg") != nil {
		t.Error("Wrap(nil, msg) should return nil")
	}
	err := errors.New("base")
	wrapped := Wrap(err, "context")
	if wrapped == nil {
		t.Fatal("Wrap(err, msg) should not return nil")
	}
	if !errors.Is(wrapped, err) {
		t.Error("wrapped error should unwrap to base")
	}
	if wrapped.Error() != "context: base" {
		t.Errorf("message: got %q", wrapped.Error())
	}
}

func TestWrapf(t *testing.T) {
	if Wrapf(nil, "format %s", "x") != nil {
		t.Error("Wrapf(nil, ...) should return nil")
	}
	wrapped := Wrapf(ErrUnavailable, "collection=%s", "shared_urls")
	if !Is(wrapped, ErrUnavailable) {
		t.Error("wrapped error should unwrap to ErrUnavailable")
	}
	if !strings.HasPrefix(wrapped.Error(), "collection=shared_urls") {
		t.Errorf("message: got %q", wrapped.Error())
	}
}

type codeErr struct{ code string }

func (e *codeErr) Error() string { return e.code }

func TestAs(t *testing.T) {
	err := Wrap(&codeErr{code: "X"}, "outer")
	var ce *codeErr
	if !As(err, &ce) || ce.code != "X" {
		t.Errorf("As should find codeErr, got %v", ce)
	}
}

func TestSentinels(t *testing.T) {
	for _, s := range []error{ErrNotFound, ErrInvalidArg, ErrUnavailable, ErrClosed} {
		if !errors.Is(Wrap(s, "x"), s) {
			t.Errorf("%v should survive Wrap", s)
		}
	}
}
