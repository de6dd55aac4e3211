package cinet

import (
	"encoding/binary"
	"fmt"
)

// PayloadFields are the decrypted-payload values of a frame to be built by
// EncodeFrame. Zero-valued fields encode to their wire zero value, except
// Heading: nil encodes as the "invalid" sentinel 0xFFFF.
type PayloadFields struct {
	MessageType  MessageType
	ClientName   string
	Latitude     float64
	Longitude    float64
	Heading      *float64
	SpeedKmh     uint16
	Timestamp    [5]byte // pre-encoded Datong GPS timestamp
	HDOP         float64
	GPSValid     bool
	Motion       bool
	Alarm        uint8
	Battery      uint8
	Temperature  int8
	Satellites   uint8
	RSSI         int32
	BitErrorRate int32
	StatusFlags  uint16
	Cell         CellInfo
	FWMajor      uint8
	FWMinor      uint8
	FWPatch      uint8
	BeaconMode   uint8
	MotionSens   uint8
	WakeTrigger  uint8
	OutputState  uint8
	GeozoneID    uint8
	InputState   uint8
	Alerts       uint16
}

// FrameFields are the full set of values needed to build one ciNet frame —
// the reference encoder's input. Used by internal/cinet/simulate and by
// round-trip tests (spec §8).
type FrameFields struct {
	DeviceKey       uint32
	Passphrase      string
	Sequence        uint8
	SourceType      string
	SerialNumber    string
	HeaderTimestamp [5]byte
	Payload         PayloadFields
}

// EncodeFrame builds a complete, encrypted, CRC-valid 149-byte ciNet frame.
// It is the exact inverse of ExtractDeviceKey+Parse: a frame built here and
// parsed back must decode to equivalent field values (spec §8's round-trip
// law), and its RawData must re-serialize to the identical bytes.
func EncodeFrame(f FrameFields) ([]byte, error) {
	payload := make([]byte, innerCRCLen+innerCRCStart) // 96 bytes
	encodePayload(payload, f.Payload)

	binary.LittleEndian.PutUint16(payload[pOffInnerCRC:pOffInnerCRC+2], invertedCRC(payload, innerCRCStart, innerCRCLen))
	binary.BigEndian.PutUint16(payload[pOffLenEcho:pOffLenEcho+2], lenEncryptedBody)

	ciphertext, err := EncryptPayload(f.Passphrase, payload)
	if err != nil {
		return nil, fmt.Errorf("cinet: encode frame: %w", err)
	}

	frame := make([]byte, FrameLen)
	frame[0] = startByte
	frame[1] = packetType
	binary.BigEndian.PutUint16(frame[offHeaderLen:offHeaderLen+2], FrameLen)
	frame[offSequence] = f.Sequence
	binary.BigEndian.PutUint32(frame[offDeviceKey:offDeviceKey+4], f.DeviceKey)
	putCString(frame[offSourceType:offSourceType+lenSourceType], f.SourceType)
	putCString(frame[offSerialNumber:offSerialNumber+lenSerialNumber], f.SerialNumber)
	copy(frame[offHeaderTimestamp:offHeaderTimestamp+5], f.HeaderTimestamp[:])
	binary.BigEndian.PutUint16(frame[offPayloadLen:offPayloadLen+2], lenEncryptedBody)
	copy(frame[offEncryptedBody:offEncryptedBody+lenEncryptedBody], ciphertext)

	binary.LittleEndian.PutUint16(frame[offOuterCRC:offOuterCRC+2], invertedCRC(frame, 0, offOuterCRC))

	return frame, nil
}

func encodePayload(d []byte, p PayloadFields) {
	d[pOffMessageType] = byte(p.MessageType)
	putCString(d[pOffClientName:pOffClientName+lenClientName], p.ClientName)

	binary.BigEndian.PutUint32(d[pOffLatitude:pOffLatitude+4], uint32(int32(p.Latitude*latLonScale)))
	binary.BigEndian.PutUint32(d[pOffLongitude:pOffLongitude+4], uint32(int32(p.Longitude*latLonScale)))

	if p.Heading == nil {
		binary.BigEndian.PutUint16(d[pOffHeading:pOffHeading+2], 0xFFFF)
	} else {
		binary.BigEndian.PutUint16(d[pOffHeading:pOffHeading+2], uint16(*p.Heading*100))
	}

	binary.BigEndian.PutUint16(d[pOffSpeed:pOffSpeed+2], p.SpeedKmh)
	copy(d[pOffGPSTimestamp:pOffGPSTimestamp+5], p.Timestamp[:])
	binary.BigEndian.PutUint16(d[pOffHDOP:pOffHDOP+2], uint16(p.HDOP*100))

	if p.GPSValid {
		d[pOffGPSValid] = 1
	}
	if p.Motion {
		d[pOffMotion] = 1
	}
	d[pOffAlarm] = p.Alarm

	d[pOffBattery] = p.Battery
	d[pOffTemperature] = byte(p.Temperature)
	d[pOffSatellites] = p.Satellites
	binary.BigEndian.PutUint32(d[pOffRSSI:pOffRSSI+4], uint32(p.RSSI))
	binary.BigEndian.PutUint32(d[pOffBER:pOffBER+4], uint32(p.BitErrorRate))
	binary.BigEndian.PutUint16(d[pOffStatusFlags:pOffStatusFlags+2], p.StatusFlags)

	binary.BigEndian.PutUint16(d[pOffLAC:pOffLAC+2], p.Cell.LAC)
	binary.BigEndian.PutUint16(d[pOffCellID:pOffCellID+2], p.Cell.CellID)
	binary.BigEndian.PutUint16(d[pOffAccessTech:pOffAccessTech+2], p.Cell.AccessTech)
	putCString(d[pOffOperator:pOffOperator+lenOperator], p.Cell.Operator)

	d[pOffFirmware] = p.FWMajor
	d[pOffFirmware+1] = p.FWMinor
	d[pOffFirmware+2] = p.FWPatch

	d[pOffBeaconMode] = p.BeaconMode
	d[pOffMotionSens] = p.MotionSens
	d[pOffWakeTrigger] = p.WakeTrigger
	d[pOffOutputState] = p.OutputState
	d[pOffGeozone] = p.GeozoneID
	d[pOffInputState] = p.InputState
	binary.BigEndian.PutUint16(d[pOffAlerts:pOffAlerts+2], p.Alerts)
}

func putCString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, s)
}
