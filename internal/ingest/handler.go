package ingest

import (
	"context"
	"errors"
	"net"

	"github.com/cinet-track/ingest/internal/cinet"
	"github.com/cinet-track/ingest/internal/hub"
	"github.com/cinet-track/ingest/internal/logging"
	"github.com/cinet-track/ingest/internal/model"
	"github.com/cinet-track/ingest/internal/store"
)

// dispatchQueueDepth bounds how far the dispatch worker may fall behind the
// read loop before backpressure kicks in. A beacon connection emits frames
// far slower than this can drain, so the bound only matters for pathological
// input.
const dispatchQueueDepth = 64

// handler owns one connection's append-only read buffer and its own
// dispatch worker. No handler shares mutable state with another connection
// (spec §4.6): each runs in its own goroutines, reachable only through this
// struct.
type handler struct {
	conn  net.Conn
	store store.Store
	hub   *hub.Hub
	cache *cinet.CipherCache

	buf     []byte
	pending chan []byte
}

func newHandler(conn net.Conn, st store.Store, h *hub.Hub, cache *cinet.CipherCache) *handler {
	return &handler{
		conn:    conn,
		store:   st,
		hub:     h,
		cache:   cache,
		pending: make(chan []byte, dispatchQueueDepth),
	}
}

// run drives the connection's read loop and its single dispatch worker. The
// dispatch worker serializes persistence for this connection (spec §5:
// "Persistence for a single connection is strictly ordered") while never
// blocking the read loop on store or hub I/O.
func (h *handler) run(ctx context.Context) {
	defer h.conn.Close()

	// Cancelling ctx closes the connection so a readLoop blocked in Read
	// returns; frames already queued are still handed to dispatch.
	stopClose := context.AfterFunc(ctx, func() { h.conn.Close() })
	defer stopClose()

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.dispatchLoop(ctx)
	}()

	h.readLoop()
	close(h.pending)
	<-done
}

func (h *handler) readLoop() {
	readBuf := make([]byte, 4096)
	for {
		n, err := h.conn.Read(readBuf)
		if n > 0 {
			h.buf = append(h.buf, readBuf[:n]...)
			h.drainFrames()
		}
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logging.L.Debugw("connection read ended", "peer", h.conn.RemoteAddr(), "error", err)
			}
			return
		}
	}
}

// drainFrames splits off and enqueues every complete 149-byte frame
// currently buffered (spec §4.6: "if buffer has >=149 bytes, split off the
// first 149 as a candidate frame and dispatch it; else stop").
func (h *handler) drainFrames() {
	for len(h.buf) >= cinet.FrameLen {
		frame := make([]byte, cinet.FrameLen)
		copy(frame, h.buf[:cinet.FrameLen])
		h.buf = h.buf[cinet.FrameLen:]
		h.pending <- frame
	}
}

func (h *handler) dispatchLoop(ctx context.Context) {
	for frame := range h.pending {
		h.dispatch(ctx, frame)
	}
}

// dispatch runs the per-frame decision chain (spec §4.6): validate header,
// extract device_key, look the device up, reject unknown/disabled devices
// without touching the cipher cache, parse, persist, touch last_seen_at,
// then publish to the hub. A malformed frame is logged and dropped; the
// connection stays open.
func (h *handler) dispatch(ctx context.Context, frame []byte) {
	if cinet.DeclaredLengthMismatch(frame) {
		logging.L.Debugw("frame declared length disagrees with wire size, ignoring field")
	}

	deviceKey, err := cinet.ExtractDeviceKey(frame)
	if err != nil {
		logging.L.Warnw("rejected frame", "reason", err)
		return
	}

	device, err := h.store.FindDeviceByKey(ctx, deviceKey)
	if errors.Is(err, store.ErrDeviceNotFound) {
		logging.L.Warnw("unknown device_key", "device_key", deviceKey)
		return
	}
	if err != nil {
		logging.L.Errorw("device lookup failed", "device_key", deviceKey, "error", err)
		return
	}
	if !device.Enabled {
		logging.L.Debugw("dropping frame for disabled device", "device_key", deviceKey)
		return
	}

	ev, err := cinet.Parse(frame, h.cache, device.Passphrase)
	if err != nil {
		logging.L.Warnw("frame parse failed", "device_key", deviceKey, "reason", err)
		return
	}

	pos := model.FromParsedEvent(device.ID, ev)
	if err := h.store.InsertPosition(ctx, pos); err != nil {
		logging.L.Errorw("insert position failed", "device_id", device.ID, "error", err)
		return
	}
	if err := h.store.TouchDeviceLastSeen(ctx, device.ID, pos.Timestamp); err != nil {
		logging.L.Errorw("touch last_seen_at failed", "device_id", device.ID, "error", err)
	}

	h.hub.PublishPosition(device.ID, hub.PositionData{
		Timestamp:  pos.Timestamp,
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		Altitude:   pos.Altitude,
		Speed:      pos.SpeedKmh,
		Heading:    pos.Heading,
		Satellites: pos.Satellites,
		HDOP:       pos.HDOP,
		Battery:    pos.Battery,
		IsMoving:   pos.Motion,
		GPSValid:   pos.GPSValid,
	})
}
