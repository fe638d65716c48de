package matcherr

import (
	"errors"
	"testing"
)

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(DBTransient, "clinical find", cause)

	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}

func TestIs(t *testing.T) {
	err := New(UnmappedHandler, "HUGO_SYMBOL", nil)
	if !Is(err, UnmappedHandler) {
		t.Fatal("expected Is to match UnmappedHandler")
	}
	if Is(err, DBFatal) {
		t.Fatal("expected Is to reject a non-matching kind")
	}
	if Is(errors.New("plain"), DBFatal) {
		t.Fatal("expected Is to reject a non-matcherr error")
	}
}

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		ConfigInvalid:     "ConfigInvalid",
		UnmappedHandler:   "UnmappedHandler",
		DBTransient:       "DBTransient",
		DBFatal:           "DBFatal",
		CurationMalformed: "CurationMalformed",
		Cancelled:         "Cancelled",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
