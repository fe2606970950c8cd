package events

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	id1, ch1 := bus.Subscribe(8)
	defer bus.Unsubscribe(id1)
	id2, ch2 := bus.Subscribe(8)
	defer bus.Unsubscribe(id2)

	bus.Publish(Event{Type: HookStarted, TaskID: 7, HookName: "Tests"})

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case e := <-ch:
			if e.Type != HookStarted || e.TaskID != 7 {
				t.Errorf("subscriber %d: unexpected event %+v", i, e)
			}
			if e.Timestamp.IsZero() {
				t.Errorf("subscriber %d: timestamp not stamped", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: no event received", i)
		}
	}
}

func TestSlowSubscriberNeverBlocksPublish(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	// Buffer of 1 and nobody draining
	id, ch := bus.Subscribe(1)
	defer bus.Unsubscribe(id)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: HookCompleted, TaskID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The one buffered event is still deliverable
	select {
	case e := <-ch:
		if e.Type != HookCompleted {
			t.Errorf("unexpected event %+v", e)
		}
	default:
		t.Error("expected one buffered event")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	id, ch := bus.Subscribe(4)
	bus.Unsubscribe(id)

	if _, open := <-ch; open {
		t.Error("expected channel closed after unsubscribe")
	}

	// Publishing after unsubscribe must not panic
	bus.Publish(Event{Type: HookFailed})

	// Double unsubscribe is a no-op
	bus.Unsubscribe(id)
}

func TestCloseShutsDownSubscribers(t *testing.T) {
	bus := NewBus()
	_, ch := bus.Subscribe(4)

	bus.Close()
	if _, open := <-ch; open {
		t.Error("expected channel closed after bus close")
	}

	// Operations on a closed bus are safe no-ops
	bus.Publish(Event{Type: HookSkipped})
	bus.Close()

	_, late := bus.Subscribe(4)
	if _, open := <-late; open {
		t.Error("expected immediately-closed channel from closed bus")
	}
}
