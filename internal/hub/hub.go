// Package hub implements the subscription fan-out hub (spec §4.8): a
// process-wide forward (device -> sinks) and reverse (sink -> devices)
// index kept consistent under one mutex, with best-effort, at-most-once
// delivery outside the lock. Grounded on the dual-map WebSocketManager in
// the original trackserver2 websocket server, generalized from asyncio
// locking to a plain sync.Mutex.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/cinet-track/ingest/internal/logging"
)

// Sink represents one live subscriber connection. Identity is pointer
// equality; Send may fail (closed connection, full buffer) and a failing
// sink is detached after delivery without affecting other sinks.
type Sink interface {
	Send(msg []byte) error
}

// Hub holds the two subscription indices. The zero value is not usable;
// construct with New.
type Hub struct {
	mu      sync.Mutex
	forward map[int64]map[Sink]struct{}
	reverse map[Sink]map[int64]struct{}
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{
		forward: make(map[int64]map[Sink]struct{}),
		reverse: make(map[Sink]map[int64]struct{}),
	}
}

// Attach registers sink with an empty subscription set (spec §4.8:
// attach(sink)). A sink is in the reverse index iff it has at least one
// forward-index entry or has been attached with no subscriptions yet.
func (h *Hub) Attach(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.reverse[sink]; !ok {
		h.reverse[sink] = make(map[int64]struct{})
	}
}

// Subscribe adds deviceIDs to both indices for sink.
func (h *Hub) Subscribe(sink Sink, deviceIDs []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	devices, ok := h.reverse[sink]
	if !ok {
		devices = make(map[int64]struct{})
		h.reverse[sink] = devices
	}
	for _, id := range deviceIDs {
		devices[id] = struct{}{}
		sinks, ok := h.forward[id]
		if !ok {
			sinks = make(map[Sink]struct{})
			h.forward[id] = sinks
		}
		sinks[sink] = struct{}{}
	}
}

// Unsubscribe removes deviceIDs from both indices for sink.
func (h *Hub) Unsubscribe(sink Sink, deviceIDs []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	devices, ok := h.reverse[sink]
	if !ok {
		return
	}
	for _, id := range deviceIDs {
		delete(devices, id)
		if sinks, ok := h.forward[id]; ok {
			delete(sinks, sink)
			if len(sinks) == 0 {
				delete(h.forward, id)
			}
		}
	}
}

// Detach removes sink from the forward index for every device it
// subscribed to, then drops it from the reverse index.
func (h *Hub) Detach(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id := range h.reverse[sink] {
		if sinks, ok := h.forward[id]; ok {
			delete(sinks, sink)
			if len(sinks) == 0 {
				delete(h.forward, id)
			}
		}
	}
	delete(h.reverse, sink)
}

// snapshot returns the sinks currently subscribed to deviceID, taken under
// the lock and released before delivery (spec §4.8: "snapshot the
// subscriber set under the lock, release lock, then deliver outside it").
func (h *Hub) snapshot(deviceID int64) []Sink {
	h.mu.Lock()
	defer h.mu.Unlock()
	sinks := h.forward[deviceID]
	out := make([]Sink, 0, len(sinks))
	for s := range sinks {
		out = append(out, s)
	}
	return out
}

func (h *Hub) snapshotAll() []Sink {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Sink, 0, len(h.reverse))
	for s := range h.reverse {
		out = append(out, s)
	}
	return out
}

// deliver sends msg to every sink, detaching any that fail. Failures never
// affect delivery to other sinks.
func (h *Hub) deliver(sinks []Sink, msg []byte) {
	var failed []Sink
	for _, s := range sinks {
		if err := s.Send(msg); err != nil {
			logging.L.Debugw("subscriber send failed, detaching", "error", err)
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		h.Detach(s)
	}
}

// PublishPosition delivers a position envelope to every sink subscribed to
// deviceID.
func (h *Hub) PublishPosition(deviceID int64, data PositionData) {
	h.publish(h.snapshot(deviceID), NewPositionEnvelope(deviceID, data))
}

// PublishAlert delivers an alert envelope to every sink subscribed to
// deviceID.
func (h *Hub) PublishAlert(deviceID int64, env AlertEnvelope) {
	h.publish(h.snapshot(deviceID), env)
}

// PublishBroadcast delivers msg to every currently attached sink,
// regardless of subscription (e.g. user_location updates, spec §6).
func (h *Hub) PublishBroadcast(v any) {
	h.publish(h.snapshotAll(), v)
}

func (h *Hub) publish(sinks []Sink, v any) {
	if len(sinks) == 0 {
		return
	}
	msg, err := json.Marshal(v)
	if err != nil {
		logging.L.Errorw("failed to marshal envelope", "error", err)
		return
	}
	h.deliver(sinks, msg)
}

// SubscriberCount reports how many devices a sink is currently subscribed
// to. Used by tests and admin tooling; not part of the wire protocol.
func (h *Hub) SubscriberCount(sink Sink) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reverse[sink])
}
