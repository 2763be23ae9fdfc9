package boterr

import (
	"errors"
	"testing"
)

func TestErrorMessageIncludesBotWhenPresent(t *testing.T) {
	cause := errors.New("connection reset")
	e := New(KindIO, "bot1", cause)
	got := e.Error()
	if got != "io[bot1]: connection reset" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestErrorMessageOmitsBotWhenEmpty(t *testing.T) {
	cause := errors.New("selector closed")
	e := New(KindFatalLoop, "", cause)
	got := e.Error()
	if got != "fatal_loop: selector closed" {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("bad opcode")
	e := New(KindLoginRejected, "bot2", cause)
	if !errors.Is(e, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestSlogExceptionHandlerImplementsInterface(t *testing.T) {
	var h ExceptionHandler = SlogExceptionHandler{}
	// Handle must not panic for either a routine and a fatal kind.
	h.Handle(New(KindIO, "bot1", errors.New("reset")))
	h.Handle(New(KindFatalLoop, "", errors.New("selector closed")))
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		KindIO:             "io",
		KindLoginRejected:  "login_rejected",
		KindProtocol:       "protocol",
		KindConfiguration:  "configuration",
		KindFatalLoop:      "fatal_loop",
		Kind(99):           "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
