// Package model holds the data types shared between the ingest core and its
// persistence port: Device (external, read-only from the core's point of
// view) and Position (written by the core on every accepted frame).
package model

import (
	"time"

	"github.com/cinet-track/ingest/internal/cinet"
)

// Device is looked up by device_key on every frame (spec §3). The core never
// creates or disables devices; it only reads them and touches last_seen_at.
type Device struct {
	ID           int64
	DeviceKey    uint32
	SerialNumber string
	Passphrase   string
	Enabled      bool
	LastSeenAt   time.Time
}

// Position is one decoded, persisted GPS fix. It carries the owning device
// id and the persisted subset of cinet.ParsedEvent's fields (ClientName,
// Alarm and the header timestamp are not kept; Altitude has no wire source
// and stays zero), and is append-only: the core never updates or deletes a
// Position row.
type Position struct {
	ID       int64
	DeviceID int64

	Timestamp time.Time

	Latitude  float64
	Longitude float64
	Altitude  float64

	Heading  *float64
	SpeedKmh uint16

	Satellites uint8
	HDOP       float64
	GPSValid   bool
	GPSAccuracy string

	Battery      uint8
	Temperature  int8
	RSSI         int32
	BitErrorRate int32

	Motion      bool
	StatusFlags uint16

	CellLAC        uint16
	CellID         uint16
	CellAccessTech uint16
	CellOperator   string

	FirmwareVersion string
	MessageType     string

	BeaconMode        uint8
	MotionSensitivity uint8
	WakeTrigger       uint8
	InputTriggered    bool
	OutputState       uint8
	GeozoneID         uint8
	InputState        uint8
	Alerts            uint16

	Sequence     uint8
	SourceType   string
	SerialNumber string

	RawData []byte
}

// FromParsedEvent builds the Position to persist for one accepted frame
// (spec §4.6 dispatch step). deviceID is the Device row's identity, not the
// wire device_key.
func FromParsedEvent(deviceID int64, ev *cinet.ParsedEvent) *Position {
	raw := make([]byte, len(ev.RawData))
	copy(raw, ev.RawData[:])

	ts := ev.Timestamp
	if !ev.TimestampValid {
		ts = ev.HeaderTimestamp
	}

	return &Position{
		DeviceID:  deviceID,
		Timestamp: ts,

		Latitude:  ev.Latitude,
		Longitude: ev.Longitude,

		Heading:  ev.Heading,
		SpeedKmh: ev.SpeedKmh,

		Satellites:  ev.Satellites,
		HDOP:        ev.HDOP,
		GPSValid:    ev.GPSValid,
		GPSAccuracy: ev.GPSAccuracy,

		Battery:      ev.Battery,
		Temperature:  ev.Temperature,
		RSSI:         ev.RSSI,
		BitErrorRate: ev.BitErrorRate,

		Motion:      ev.Motion,
		StatusFlags: ev.StatusFlags,

		CellLAC:        ev.Cell.LAC,
		CellID:         ev.Cell.CellID,
		CellAccessTech: ev.Cell.AccessTech,
		CellOperator:   ev.Cell.Operator,

		FirmwareVersion: ev.FirmwareVersion,
		MessageType:     ev.MessageType.Label(),

		BeaconMode:        ev.BeaconMode,
		MotionSensitivity: ev.MotionSensitivity,
		WakeTrigger:       ev.WakeTrigger,
		InputTriggered:    ev.InputTriggered,
		OutputState:       ev.OutputState,
		GeozoneID:         ev.GeozoneID,
		InputState:        ev.InputState,
		Alerts:            ev.Alerts,

		Sequence:     ev.Sequence,
		SourceType:   ev.SourceType,
		SerialNumber: ev.SerialNumber,

		RawData: raw,
	}
}
