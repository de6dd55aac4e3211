package hub

import (
	"encoding/json"
	"sync"
	"testing"
)

type recordingSink struct {
	mu       sync.Mutex
	messages [][]byte
	failNext bool
}

func (s *recordingSink) Send(msg []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		return errSendFailed
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

var errSendFailed = &sendError{}

type sendError struct{}

func (*sendError) Error() string { return "send failed" }

func TestTwoSubscribersScenario(t *testing.T) {
	// spec §8 scenario 4.
	h := New()
	s1 := &recordingSink{}
	s2 := &recordingSink{}
	h.Attach(s1)
	h.Attach(s2)

	h.Subscribe(s1, []int64{7})
	h.Subscribe(s2, []int64{7, 8})

	h.PublishPosition(7, PositionData{})
	if s1.count() != 1 {
		t.Fatalf("s1 should receive device 7 update, got %d messages", s1.count())
	}
	if s2.count() != 1 {
		t.Fatalf("s2 should receive device 7 update, got %d messages", s2.count())
	}

	h.PublishPosition(8, PositionData{})
	if s1.count() != 1 {
		t.Fatalf("s1 should not receive device 8 update, got %d messages", s1.count())
	}
	if s2.count() != 2 {
		t.Fatalf("s2 should receive device 8 update, got %d messages", s2.count())
	}

	h.Detach(s1)
	if h.SubscriberCount(s1) != 0 {
		t.Fatalf("detached sink should have no subscriptions")
	}
	h.PublishPosition(7, PositionData{})
	if s1.count() != 1 {
		t.Fatalf("detached sink must not receive further publishes")
	}
}

func TestFailingSinkDetachedWithoutAffectingOthers(t *testing.T) {
	h := New()
	good := &recordingSink{}
	bad := &recordingSink{failNext: true}
	h.Attach(good)
	h.Attach(bad)
	h.Subscribe(good, []int64{1})
	h.Subscribe(bad, []int64{1})

	h.PublishPosition(1, PositionData{})

	if good.count() != 1 {
		t.Fatalf("good sink should still receive the message")
	}
	if h.SubscriberCount(bad) != 0 {
		t.Fatalf("failing sink should have been detached")
	}
}

func TestReverseIndexConsistentWithForwardIndex(t *testing.T) {
	h := New()
	s := &recordingSink{}
	h.Attach(s)
	h.Subscribe(s, []int64{1, 2})
	h.Unsubscribe(s, []int64{1})

	if h.SubscriberCount(s) != 1 {
		t.Fatalf("expected one remaining subscription after partial unsubscribe")
	}

	h.Unsubscribe(s, []int64{2})
	if h.SubscriberCount(s) != 0 {
		t.Fatalf("expected zero subscriptions, sink should remain attached")
	}
}

func TestPublishBroadcastReachesAllAttachedSinks(t *testing.T) {
	h := New()
	s1, s2 := &recordingSink{}, &recordingSink{}
	h.Attach(s1)
	h.Attach(s2)

	h.PublishBroadcast(map[string]string{"type": "user_location"})

	if s1.count() != 1 || s2.count() != 1 {
		t.Fatalf("broadcast should reach every attached sink regardless of subscription")
	}
	var decoded map[string]string
	msgs := s1.messages
	if err := json.Unmarshal(msgs[0], &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["type"] != "user_location" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}
