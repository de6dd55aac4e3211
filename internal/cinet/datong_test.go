package cinet

import (
	"testing"
	"time"
)

func TestDecodeDatongEpochVector(t *testing.T) {
	// spec §8 scenario 6: 1980-01-01T00:00:00Z encodes to exactly these bytes.
	got, ok := decodeDatong([5]byte{0x08, 0x00, 0x00, 0x00, 0x00})
	if !ok {
		t.Fatalf("expected valid decode")
	}
	want := time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("decodeDatong = %v, want %v", got, want)
	}
}

func TestEncodeDatongEpochVector(t *testing.T) {
	want := [5]byte{0x08, 0x00, 0x00, 0x00, 0x00}
	got := encodeDatong(time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC))
	if got != want {
		t.Fatalf("encodeDatong = %x, want %x", got, want)
	}
}

func TestDatongRoundTrip(t *testing.T) {
	cases := []time.Time{
		time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC),
		time.Date(2107, time.December, 31, 23, 59, 59, 0, time.UTC),
		time.Date(2000, time.February, 29, 6, 30, 15, 0, time.UTC),
	}
	for _, want := range cases {
		b := encodeDatong(want)
		got, ok := decodeDatong(b)
		if !ok {
			t.Fatalf("decodeDatong(%x) reported invalid for %v", b, want)
		}
		if !got.Equal(want) {
			t.Fatalf("round trip %v -> %x -> %v", want, b, got)
		}
	}
}

func TestDecodeDatongInvalidFallsBackToEpoch(t *testing.T) {
	// wire month field 15 (> 11) is out of range.
	got, ok := decodeDatong([5]byte{0x0F, 0x80, 0x00, 0x00, 0x00})
	if ok {
		t.Fatalf("expected invalid decode")
	}
	if !got.Equal(datongEpoch) {
		t.Fatalf("expected fallback to epoch, got %v", got)
	}
}

func TestDecodeDatongInvalidDayFallsBackToEpoch(t *testing.T) {
	// Feb 30 never exists.
	b := [5]byte{
		byte(30<<3) | byte(1>>1), // day=30, wireMonth=1 (Feb)
		byte(1&0x01) << 7,
		0, 0, 0,
	}
	got, ok := decodeDatong(b)
	if ok {
		t.Fatalf("expected invalid decode for Feb 30")
	}
	if !got.Equal(datongEpoch) {
		t.Fatalf("expected fallback to epoch, got %v", got)
	}
}
