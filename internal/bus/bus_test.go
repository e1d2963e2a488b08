package bus

import (
	"reflect"
	"testing"
)

func TestEmitPreservesRegistrationOrder(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe("ping", func(event string, payload any) {
		got = append(got, "first")
	})
	b.Subscribe("ping", func(event string, payload any) {
		got = append(got, "second")
	})
	b.Subscribe("other", func(event string, payload any) {
		got = append(got, "other")
	})

	b.Emit("ping", nil)

	want := []string{"first", "second"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("delivery order = %v, want %v", got, want)
	}
}

func TestSubscribeAll(t *testing.T) {
	b := New()
	var events []string
	b.SubscribeAll(func(event string, payload any) {
		events = append(events, event)
	})

	b.Emit(EventGameStarted, nil)
	b.Emit(EventSceneChanged, "payload")

	want := []string{EventGameStarted, EventSceneChanged}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
}

func TestNilBusIsSafe(t *testing.T) {
	var b *Bus
	b.Subscribe("x", func(string, any) {})
	b.Emit("x", nil)
}
