// Package simulate builds synthetic ciNet frames for a virtual beacon,
// grounded on original_source/tools/beacon_simulator.py's BeaconSimulator:
// same field defaults (Millitag source type, "TestClient" client name,
// sequence wraparound at 256, random-walk movement), re-expressed over
// internal/cinet's EncodeFrame rather than hand-rolled struct packing.
package simulate

import (
	"math/rand"
	"time"

	"github.com/cinet-track/ingest/internal/cinet"
	"github.com/cinet-track/ingest/internal/timeutil"
)

// Beacon is a stateful virtual device: each call to Next() advances its
// position by a small random walk and returns the next wire frame, mirroring
// BeaconSimulator.run()'s per-tick movement and sequence counter.
type Beacon struct {
	DeviceKey    uint32
	Passphrase   string
	SerialNumber string
	SourceType   string // defaults to "Millitag" when empty
	ClientName   string // defaults to "TestClient" when empty

	Latitude  float64
	Longitude float64

	sequence uint8
	rng      *rand.Rand
	clock    timeutil.Clock
}

// NewBeacon builds a Beacon starting at (lat, lon) exactly as given; (0, 0)
// is used as-is, with no substituted default position. Ticks whose Fix
// leaves At zero fall back to clock.Now(); defaults to timeutil.RealClock,
// override via WithClock for deterministic tests.
func NewBeacon(deviceKey uint32, passphrase, serialNumber string, lat, lon float64, seed int64) *Beacon {
	return &Beacon{
		DeviceKey:    deviceKey,
		Passphrase:   passphrase,
		SerialNumber: serialNumber,
		Latitude:     lat,
		Longitude:    lon,
		rng:          rand.New(rand.NewSource(seed)),
		clock:        timeutil.RealClock{},
	}
}

// WithClock overrides the beacon's time source, for tests that need a
// deterministic default timestamp instead of wall-clock time.
func (b *Beacon) WithClock(c timeutil.Clock) *Beacon {
	b.clock = c
	return b
}

// Fix is one simulated position reading, the inputs beacon_simulator.py
// varies per tick (speed and battery are caller-driven; everything else
// the Beacon tracks itself).
type Fix struct {
	SpeedKmh uint16
	Battery  uint8
	At       time.Time
}

// Next advances the beacon's position by a small random walk (spec §8's
// "simulate some movement", ±0.0001 degrees per tick) and encodes a complete
// wire frame for the given fix.
func (b *Beacon) Next(fix Fix) ([]byte, error) {
	b.Latitude += (b.rng.Float64()*2 - 1) * 0.0001
	b.Longitude += (b.rng.Float64()*2 - 1) * 0.0001
	b.sequence++

	sourceType := b.SourceType
	if sourceType == "" {
		sourceType = "Millitag"
	}
	clientName := b.ClientName
	if clientName == "" {
		clientName = "TestClient"
	}

	at := fix.At
	if at.IsZero() {
		at = b.clock.Now().UTC()
	}
	ts := cinet.EncodeTimestamp(at)

	return cinet.EncodeFrame(cinet.FrameFields{
		DeviceKey:       b.DeviceKey,
		Passphrase:      b.Passphrase,
		Sequence:        b.sequence,
		SourceType:      sourceType,
		SerialNumber:    b.SerialNumber,
		HeaderTimestamp: ts,
		Payload: cinet.PayloadFields{
			MessageType: cinet.MessageTypePosition,
			ClientName:  clientName,
			Latitude:    b.Latitude,
			Longitude:   b.Longitude,
			SpeedKmh:    fix.SpeedKmh,
			Timestamp:   ts,
			HDOP:        1.0,
			GPSValid:    true,
			Motion:      fix.SpeedKmh > 0,
			Alarm:       0xFF,
			Battery:     fix.Battery,
			Temperature: 20,
			Satellites:  8,
			FWMajor:     1,
		},
	})
}
