// Command simulate drives synthetic ciNet traffic against a running ingest
// server for manual and load testing, grounded on
// original_source/tools/beacon_simulator.py's BeaconSimulator.run() loop:
// open a TCP connection, build and send one frame per tick, sleep, repeat.
package main

import (
	"flag"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cinet-track/ingest/internal/cinet/simulate"
	"github.com/cinet-track/ingest/internal/timeutil"
)

var (
	host       = flag.String("host", "localhost", "ingest server host")
	port       = flag.Int("port", 4509, "ingest server port")
	key        = flag.String("key", "06.EA.83.A3", "device key, hex (dots/spaces/0x ignored)")
	serial     = flag.String("serial", "SIM00000001", "device serial number")
	passphrase = flag.String("passphrase", "fredfred", "device passphrase")
	lat        = flag.Float64("lat", 51.5074, "starting latitude")
	lon        = flag.Float64("lon", -0.1278, "starting longitude")
	interval   = flag.Duration("interval", 10*time.Second, "time between messages")
	count      = flag.Int("count", 0, "number of messages to send (0 = infinite)")
)

func parseDeviceKey(s string) (uint32, error) {
	clean := strings.NewReplacer(".", "", " ", "", "0x", "").Replace(s)
	v, err := strconv.ParseUint(clean, 16, 32)
	return uint32(v), err
}

func main() {
	flag.Parse()

	deviceKey, err := parseDeviceKey(*key)
	if err != nil {
		log.Fatalf("invalid device key %q: %v", *key, err)
	}
	log.Printf("device key: %#08X", deviceKey)

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Fatalf("connect to %s: %v", addr, err)
	}
	defer conn.Close()
	log.Printf("connected to %s", addr)

	clock := timeutil.RealClock{}
	beacon := simulate.NewBeacon(deviceKey, *passphrase, *serial, *lat, *lon, clock.Now().UnixNano())

	sent := 0
	for *count == 0 || sent < *count {
		speed := uint16(30)
		battery := uint8(100)
		if sent < 100 {
			battery = uint8(100 - sent)
		}

		frame, err := beacon.Next(simulate.Fix{SpeedKmh: speed, Battery: battery})
		if err != nil {
			log.Fatalf("encode frame: %v", err)
		}
		if _, err := conn.Write(frame); err != nil {
			log.Fatalf("write frame: %v", err)
		}

		sent++
		log.Printf("sent message %d: (%.6f, %.6f) speed=%dkm/h battery=%d%%",
			sent, beacon.Latitude, beacon.Longitude, speed, battery)

		clock.Sleep(*interval)
	}
	log.Printf("disconnected, sent %d messages", sent)
}
