package stt

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindRoundTrip(t *testing.T) {
	cases := []error{
		fmt.Errorf("%w: 12MB", ErrTooLarge),
		ErrUnrecognized,
		Unavailable(errors.New("503")),
	}
	for _, err := range cases {
		kind := KindOf(err)
		if kind == "" {
			t.Fatalf("expected kind for %v", err)
		}
		back := FromKind(kind, err.Error())
		if KindOf(back) != kind {
			t.Fatalf("kind %s lost in round trip: %v", kind, back)
		}
	}
	if KindOf(errors.New("boom")) != "" {
		t.Fatal("plain errors must stay unclassified")
	}
	if !errors.Is(Unavailable(errors.New("x")), ErrServiceUnavailable) {
		t.Fatal("Unavailable must wrap ErrServiceUnavailable")
	}
}
