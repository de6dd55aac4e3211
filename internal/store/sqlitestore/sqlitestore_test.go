package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cinet-track/ingest/internal/model"
	"github.com/cinet-track/ingest/internal/store"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedDevice(t *testing.T, s *Store, deviceKey uint32) int64 {
	t.Helper()
	res, err := s.db.Exec(`INSERT INTO devices (device_key, serial_number, passphrase, enabled) VALUES (?, ?, ?, 1)`,
		deviceKey, "SN-1", "fredfred")
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("last insert id: %v", err)
	}
	return id
}

func TestFindDeviceByKeyNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.FindDeviceByKey(context.Background(), 0xDEADBEEF)
	if err != store.ErrDeviceNotFound {
		t.Fatalf("err = %v, want ErrDeviceNotFound", err)
	}
}

func TestFindDeviceByKeyFound(t *testing.T) {
	s := openTestStore(t)
	seedDevice(t, s, 0x06EA83A3)

	d, err := s.FindDeviceByKey(context.Background(), 0x06EA83A3)
	if err != nil {
		t.Fatalf("FindDeviceByKey: %v", err)
	}
	if d.Passphrase != "fredfred" || !d.Enabled {
		t.Fatalf("unexpected device: %+v", d)
	}
}

func TestInsertPositionAndTouchLastSeen(t *testing.T) {
	s := openTestStore(t)
	deviceID := seedDevice(t, s, 1)
	ctx := context.Background()

	pos := &model.Position{
		DeviceID:  deviceID,
		Timestamp: time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC),
		Latitude:  51.5074,
		Longitude: -0.1278,
		RawData:   make([]byte, 149),
	}
	if err := s.InsertPosition(ctx, pos); err != nil {
		t.Fatalf("InsertPosition: %v", err)
	}

	t1 := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	if err := s.TouchDeviceLastSeen(ctx, deviceID, t1); err != nil {
		t.Fatalf("TouchDeviceLastSeen: %v", err)
	}
	d, err := s.FindDeviceByKey(ctx, 1)
	if err != nil {
		t.Fatalf("FindDeviceByKey: %v", err)
	}
	if !d.LastSeenAt.Equal(t1) {
		t.Fatalf("last_seen_at = %v, want %v", d.LastSeenAt, t1)
	}

	// An earlier timestamp must not move last_seen_at backwards.
	earlier := t1.Add(-time.Hour)
	if err := s.TouchDeviceLastSeen(ctx, deviceID, earlier); err != nil {
		t.Fatalf("TouchDeviceLastSeen (earlier): %v", err)
	}
	d, err = s.FindDeviceByKey(ctx, 1)
	if err != nil {
		t.Fatalf("FindDeviceByKey: %v", err)
	}
	if !d.LastSeenAt.Equal(t1) {
		t.Fatalf("last_seen_at moved backwards: got %v, want %v", d.LastSeenAt, t1)
	}
}
