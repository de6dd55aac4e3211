package simulate

import (
	"testing"
	"time"

	"github.com/cinet-track/ingest/internal/cinet"
	"github.com/cinet-track/ingest/internal/timeutil"
)

func TestNextProducesParsableFrame(t *testing.T) {
	b := NewBeacon(0x06EA83A3, "fredfred", "SIM00000001", 51.5074, -0.1278, 1)

	frame, err := b.Next(Fix{SpeedKmh: 30, Battery: 90, At: time.Date(2024, time.March, 2, 10, 30, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	cache := cinet.NewCipherCache()
	deviceKey, err := cinet.ExtractDeviceKey(frame)
	if err != nil {
		t.Fatalf("ExtractDeviceKey: %v", err)
	}
	if deviceKey != 0x06EA83A3 {
		t.Fatalf("device key = %#x", deviceKey)
	}

	ev, err := cinet.Parse(frame, cache, "fredfred")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !ev.GPSValid || ev.Satellites != 8 || ev.SpeedKmh != 30 {
		t.Fatalf("unexpected parsed event: %+v", ev)
	}
}

func TestNextAdvancesPositionAndSequence(t *testing.T) {
	b := NewBeacon(1, "pw", "S", 0, 0, 42)

	f1, err := b.Next(Fix{At: time.Unix(0, 0).UTC()})
	if err != nil {
		t.Fatalf("Next 1: %v", err)
	}
	lat1, lon1 := b.Latitude, b.Longitude

	f2, err := b.Next(Fix{At: time.Unix(0, 0).UTC()})
	if err != nil {
		t.Fatalf("Next 2: %v", err)
	}

	if lat1 == b.Latitude && lon1 == b.Longitude {
		t.Fatalf("position did not advance between ticks")
	}
	if string(f1) == string(f2) {
		t.Fatalf("consecutive frames must differ (sequence/position changed)")
	}
}

func TestNextUsesInjectedClockWhenFixTimeIsZero(t *testing.T) {
	fixed := time.Date(2026, time.July, 4, 9, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(fixed)

	b := NewBeacon(0x06EA83A3, "fredfred", "SIM00000001", 51.5074, -0.1278, 7).WithClock(clock)

	frame, err := b.Next(Fix{SpeedKmh: 10, Battery: 80})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}

	cache := cinet.NewCipherCache()
	ev, err := cinet.Parse(frame, cache, "fredfred")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !ev.Timestamp.Equal(fixed) {
		t.Fatalf("timestamp = %v, want %v (the mock clock's fixed time)", ev.Timestamp, fixed)
	}

	clock.Advance(time.Minute)
	frame2, err := b.Next(Fix{SpeedKmh: 10, Battery: 80})
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	ev2, err := cinet.Parse(frame2, cache, "fredfred")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !ev2.Timestamp.Equal(fixed.Add(time.Minute)) {
		t.Fatalf("timestamp after Advance = %v, want %v", ev2.Timestamp, fixed.Add(time.Minute))
	}
}
