package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)

	bus.Publish(New(KindConnState, ConnStateData{State: "connecting"}))

	for name, ch := range map[string]chan Event{"a": a, "b": b} {
		select {
		case ev := <-ch:
			if ev.Kind != KindConnState {
				t.Errorf("subscriber %s: kind = %q, want %q", name, ev.Kind, KindConnState)
			}
			var data ConnStateData
			if err := json.Unmarshal(ev.Data, &data); err != nil {
				t.Fatalf("subscriber %s: bad payload: %v", name, err)
			}
			if data.State != "connecting" {
				t.Errorf("subscriber %s: state = %q", name, data.State)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s: no event received", name)
		}
	}
}

func TestBusDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	full := bus.Subscribe(1)
	bus.Publish(New(KindTableUpdate, TableUpdateData{LocalID: 1, Action: "created"}))

	done := make(chan struct{})
	go func() {
		// Buffer is full: this publish must drop, not block.
		bus.Publish(New(KindTableUpdate, TableUpdateData{LocalID: 2, Action: "created"}))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}

	// The first event is still there.
	ev := <-full
	var data TableUpdateData
	if err := json.Unmarshal(ev.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.LocalID != 1 {
		t.Errorf("surviving event local id = %d, want 1", data.LocalID)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe(1)
	bus.Unsubscribe(ch)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}

	// Publishing after unsubscribe must not panic on the closed channel.
	bus.Publish(New(KindConnState, ConnStateData{State: "disconnected"}))
}
