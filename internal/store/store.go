// Package store defines the persistence port consumed by the ingest core
// (spec §6). It is deliberately narrow: the core only ever looks a device
// up, inserts a position, and touches last_seen_at. internal/store/sqlitestore
// provides a concrete adapter; any other implementation only needs to
// satisfy this interface.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/cinet-track/ingest/internal/model"
)

// ErrDeviceNotFound is returned by FindDeviceByKey when no device owns the
// given key. The connection handler treats this the same as a disabled
// device: drop the frame, log, never touch the cipher cache.
var ErrDeviceNotFound = errors.New("store: device not found")

// Store is the persistence port (spec §6). Implementations must make
// FindDeviceByKey O(1) or O(log n), and InsertPosition durable on return.
type Store interface {
	// FindDeviceByKey looks a device up by its wire device_key. Returns
	// ErrDeviceNotFound if no such device is registered.
	FindDeviceByKey(ctx context.Context, deviceKey uint32) (*model.Device, error)

	// InsertPosition appends one Position row. Positions are append-only;
	// this never updates an existing row.
	InsertPosition(ctx context.Context, pos *model.Position) error

	// TouchDeviceLastSeen advances a device's last_seen_at to the max of
	// its current value and ts (idempotent, spec §6).
	TouchDeviceLastSeen(ctx context.Context, deviceID int64, ts time.Time) error
}
