// Package cinet implements the ciNet wire protocol: frame validation,
// Blowfish/ECB decryption, dual CRC-16 verification, and payload decoding
// into a ParsedEvent.
package cinet

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cinet-track/ingest/internal/crc16"
)

// FrameLen is the fixed on-wire frame size (spec §4.4).
const FrameLen = 149

const (
	startByte  = 0x24
	packetType = 0x55

	offHeaderLen       = 2
	offSequence        = 4
	offDeviceKey       = 5
	offSourceType      = 10
	lenSourceType      = 12
	offSerialNumber    = 22
	lenSerialNumber    = 24
	offHeaderTimestamp = 46
	offPayloadLen      = 51
	offInnerCRCEcho    = 53
	offEncryptedBody   = 51
	lenEncryptedBody   = 96
	offOuterCRC        = 147
)

// Decrypted-payload relative offsets (spec §4.4, second table). Offsets are
// relative to the start of the decrypted 96-byte buffer.
const (
	pOffLenEcho      = 0
	pOffInnerCRC     = 2
	pOffMessageType  = 4
	pOffClientName   = 5
	lenClientName    = 20
	pOffLatitude     = 25
	pOffLongitude    = 29
	pOffHeading      = 33
	pOffSpeed        = 35
	pOffGPSTimestamp = 37
	pOffHDOP         = 42
	pOffGPSValid     = 44
	pOffMotion       = 45
	pOffAlarm        = 46
	pOffFamilyLen    = 47
	pOffBattery      = 49
	pOffTemperature  = 50
	pOffSatellites   = 51
	pOffRSSI         = 52
	pOffBER          = 56
	pOffStatusFlags  = 60
	pOffLAC          = 62
	pOffCellID       = 64
	pOffAccessTech   = 66
	pOffOperator     = 68
	lenOperator      = 8
	pOffFirmware     = 76
	pOffBeaconMode   = 87
	pOffMotionSens   = 88
	pOffWakeTrigger  = 89
	pOffOutputState  = 90
	pOffGeozone      = 91
	pOffInputState   = 92
	pOffAlerts       = 93

	innerCRCStart = 4
	innerCRCLen   = 92
)

// latLonScale is the fixed-point scale for latitude/longitude (NOT 1e7).
const latLonScale = 60000.0

// MessageType identifies the payload's message kind (spec §4.4).
type MessageType uint8

const (
	MessageTypePosition MessageType = iota
	MessageTypeStatus
	MessageTypeGSM
	MessageTypeDiagnostic
)

// Label returns the decoded message's display label; unknown codes map to
// "Position" per spec §4.4 step 6.
func (m MessageType) Label() string {
	switch m {
	case MessageTypePosition:
		return "Position"
	case MessageTypeStatus:
		return "Status"
	case MessageTypeGSM:
		return "GSM"
	case MessageTypeDiagnostic:
		return "Diagnostic"
	default:
		return "Position"
	}
}

// GPS accuracy buckets derived from HDOP (spec §4.4 step 6).
const (
	AccuracyHigh   = "High"
	AccuracyMedium = "Medium"
	AccuracyLow    = "Low"
	AccuracyPoor   = "Poor"
	AccuracyNoFix  = "NoFix"
)

// CellInfo carries the cellular registration fields of the payload.
type CellInfo struct {
	LAC        uint16
	CellID     uint16
	AccessTech uint16
	Operator   string
}

// ParsedEvent is the ephemeral decoded representation of one ciNet frame
// (spec §3). It's produced by Parse, consumed by the persistence port and
// the subscription hub, then discarded.
type ParsedEvent struct {
	DeviceKey    uint32
	Sequence     uint8
	SourceType   string
	SerialNumber string

	HeaderTimestamp      time.Time
	HeaderTimestampValid bool

	MessageType MessageType
	ClientName  string

	Latitude  float64
	Longitude float64
	// Heading is nil when the wire value is 0xFFFF ("unknown/invalid");
	// never represented as the numeric 65535.
	Heading       *float64
	SpeedKmh      uint16
	Timestamp     time.Time
	TimestampValid bool

	HDOP     float64
	GPSValid bool
	Motion   bool
	Alarm    uint8

	Battery      uint8
	Temperature  int8
	Satellites   uint8
	RSSI         int32
	BitErrorRate int32
	StatusFlags  uint16

	Cell CellInfo

	FirmwareVersion string

	BeaconMode        uint8
	MotionSensitivity uint8
	WakeTrigger       uint8
	InputTriggered    bool
	OutputState       uint8
	GeozoneID         uint8
	InputState        uint8
	Alerts            uint16

	GPSAccuracy string

	RawData [FrameLen]byte
}

// ValidateHeader checks the frame's fixed markers. It does not check the
// declared-length field at offset 2 against FrameLen: the reference
// implementation treats frame length as fixed and ignores that field (spec
// §9 open question) — frame length is never used to size the read.
func ValidateHeader(data []byte) error {
	if len(data) < FrameLen {
		return fmt.Errorf("%w: short frame (%d bytes)", ErrBadHeader, len(data))
	}
	if data[0] != startByte {
		return fmt.Errorf("%w: start byte %#02x", ErrBadHeader, data[0])
	}
	if data[1] != packetType {
		return fmt.Errorf("%w: packet type %#02x", ErrBadHeader, data[1])
	}
	return nil
}

// DeclaredLengthMismatch reports whether the frame's declared-length field
// (offset 2, big-endian) disagrees with FrameLen. Callers may log this; per
// spec §9 it is never used to reject or resize a frame.
func DeclaredLengthMismatch(data []byte) bool {
	if len(data) < offHeaderLen+2 {
		return false
	}
	return binary.BigEndian.Uint16(data[offHeaderLen:offHeaderLen+2]) != FrameLen
}

// ExtractDeviceKey validates the header and outer CRC, then returns the
// device key. This is the staged first half of parsing (spec §9: the
// passphrase needed for the second half isn't known until the caller looks
// the device up by this key). The outer CRC is verified here and must not
// be recomputed by Parse.
func ExtractDeviceKey(data []byte) (uint32, error) {
	if err := ValidateHeader(data); err != nil {
		return 0, err
	}
	if err := verifyOuterCRC(data); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(data[offDeviceKey : offDeviceKey+4]), nil
}

func verifyOuterCRC(data []byte) error {
	stored := binary.LittleEndian.Uint16(data[offOuterCRC : offOuterCRC+2])
	if invertedCRC(data, 0, offOuterCRC) != stored {
		return ErrBadOuterCRC
	}
	return nil
}

// invertedCRC computes the CRC-16 over data[offset:offset+length] and
// returns its bitwise inverse, as stored on the wire (spec §4.1).
func invertedCRC(data []byte, offset, length int) uint16 {
	return (^crc16.Checksum(data, offset, length)) & 0xFFFF
}

// Parse decrypts and decodes a frame already validated by ExtractDeviceKey.
// passphrase selects (or derives, on first use) the device's cipher
// schedule from cache. Parse does not re-verify the outer CRC.
func Parse(data []byte, cache *CipherCache, passphrase string) (*ParsedEvent, error) {
	if len(data) < FrameLen {
		return nil, fmt.Errorf("%w: short frame (%d bytes)", ErrBadHeader, len(data))
	}

	cipher, err := cache.get(passphrase)
	if err != nil {
		return nil, err
	}
	decrypted, err := cipher.decrypt(data[offEncryptedBody : offEncryptedBody+lenEncryptedBody])
	if err != nil {
		return nil, err
	}

	if err := verifyInnerCRC(decrypted); err != nil {
		return nil, err
	}

	ev := &ParsedEvent{
		DeviceKey:    binary.BigEndian.Uint32(data[offDeviceKey : offDeviceKey+4]),
		Sequence:     data[offSequence],
		SourceType:   cstring(data[offSourceType : offSourceType+lenSourceType]),
		SerialNumber: cstring(data[offSerialNumber : offSerialNumber+lenSerialNumber]),
	}
	copy(ev.RawData[:], data[:FrameLen])

	var headerTS [5]byte
	copy(headerTS[:], data[offHeaderTimestamp:offHeaderTimestamp+5])
	ev.HeaderTimestamp, ev.HeaderTimestampValid = decodeDatong(headerTS)

	decodePayload(ev, decrypted)
	return ev, nil
}

func verifyInnerCRC(decrypted []byte) error {
	stored := binary.LittleEndian.Uint16(decrypted[pOffInnerCRC : pOffInnerCRC+2])
	if invertedCRC(decrypted, innerCRCStart, innerCRCLen) != stored {
		return ErrBadInnerCRC
	}
	return nil
}

func decodePayload(ev *ParsedEvent, d []byte) {
	ev.MessageType = MessageType(d[pOffMessageType])
	ev.ClientName = cstring(d[pOffClientName : pOffClientName+lenClientName])

	latRaw := int32(binary.BigEndian.Uint32(d[pOffLatitude : pOffLatitude+4]))
	lonRaw := int32(binary.BigEndian.Uint32(d[pOffLongitude : pOffLongitude+4]))
	ev.Latitude = float64(latRaw) / latLonScale
	ev.Longitude = float64(lonRaw) / latLonScale

	headingRaw := binary.BigEndian.Uint16(d[pOffHeading : pOffHeading+2])
	if headingRaw != 0xFFFF {
		h := float64(headingRaw) / 100.0
		ev.Heading = &h
	}

	ev.SpeedKmh = binary.BigEndian.Uint16(d[pOffSpeed : pOffSpeed+2])

	var gpsTS [5]byte
	copy(gpsTS[:], d[pOffGPSTimestamp:pOffGPSTimestamp+5])
	ev.Timestamp, ev.TimestampValid = decodeDatong(gpsTS)

	hdopRaw := binary.BigEndian.Uint16(d[pOffHDOP : pOffHDOP+2])
	ev.HDOP = float64(hdopRaw) / 100.0

	ev.GPSValid = d[pOffGPSValid] == 1
	ev.Motion = d[pOffMotion] != 0
	ev.Alarm = d[pOffAlarm]

	ev.Battery = d[pOffBattery]
	ev.Temperature = int8(d[pOffTemperature])
	ev.Satellites = d[pOffSatellites]
	ev.RSSI = int32(binary.BigEndian.Uint32(d[pOffRSSI : pOffRSSI+4]))
	ev.BitErrorRate = int32(binary.BigEndian.Uint32(d[pOffBER : pOffBER+4]))
	ev.StatusFlags = binary.BigEndian.Uint16(d[pOffStatusFlags : pOffStatusFlags+2])

	ev.Cell = CellInfo{
		LAC:        binary.BigEndian.Uint16(d[pOffLAC : pOffLAC+2]),
		CellID:     binary.BigEndian.Uint16(d[pOffCellID : pOffCellID+2]),
		AccessTech: binary.BigEndian.Uint16(d[pOffAccessTech : pOffAccessTech+2]),
		Operator:   cstring(d[pOffOperator : pOffOperator+lenOperator]),
	}

	ev.FirmwareVersion = fmt.Sprintf("%d.%d.%d", d[pOffFirmware], d[pOffFirmware+1], d[pOffFirmware+2])

	ev.BeaconMode = d[pOffBeaconMode]
	ev.MotionSensitivity = d[pOffMotionSens]
	ev.WakeTrigger = d[pOffWakeTrigger]
	ev.InputTriggered = ev.WakeTrigger == 1
	ev.OutputState = d[pOffOutputState]
	ev.GeozoneID = d[pOffGeozone]
	ev.InputState = d[pOffInputState]
	ev.Alerts = binary.BigEndian.Uint16(d[pOffAlerts : pOffAlerts+2])

	ev.GPSAccuracy = gpsAccuracy(ev.GPSValid, ev.HDOP)
}

func gpsAccuracy(valid bool, hdop float64) string {
	if !valid {
		return AccuracyNoFix
	}
	switch {
	case hdop <= 1.0:
		return AccuracyHigh
	case hdop <= 2.0:
		return AccuracyMedium
	case hdop <= 5.0:
		return AccuracyLow
	default:
		return AccuracyPoor
	}
}

// cstring trims trailing NUL padding from a fixed-width ASCII field.
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
