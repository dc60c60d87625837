package events

import (
	"sync"
	"testing"
)

type recordingSubscriber struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSubscriber) On(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New(nil)
	a, c := &recordingSubscriber{}, &recordingSubscriber{}
	b.Subscribe(a)
	b.Subscribe(c)

	b.Publish(Event{Type: ServoUpdate, Data: "left_eye"})

	if a.count() != 1 || c.count() != 1 {
		t.Fatalf("expected both subscribers to receive the event: a=%d c=%d", a.count(), c.count())
	}
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	b := New(nil)
	ok := &recordingSubscriber{}
	b.Subscribe(SubscriberFunc(func(Event) { panic("boom") }))
	b.Subscribe(ok)

	b.Publish(Event{Type: EmergencyStop})

	if ok.count() != 1 {
		t.Fatalf("expected surviving subscriber to still receive the event, got %d", ok.count())
	}
}
