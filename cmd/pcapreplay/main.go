//go:build pcap
// +build pcap

// Command pcapreplay offline-replays a captured pcap of ciNet TCP traffic
// through the full parse+store pipeline for forensic analysis (SPEC_FULL.md
// §12 supplemented feature). Grounded on
// banshee-data-velocity.report/internal/lidar/network/pcap_realtime.go's
// gopacket.NewPacketSource loop and cmd/tools/pcap-analyse/main.go's
// summary-report shape, re-targeted at TCP stream reassembly (ciNet is a
// stream protocol, not per-packet UDP) via gopacket/tcpassembly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"github.com/google/gopacket/tcpassembly"

	"github.com/cinet-track/ingest/internal/cinet"
	"github.com/cinet-track/ingest/internal/model"
	"github.com/cinet-track/ingest/internal/store"
	"github.com/cinet-track/ingest/internal/store/sqlitestore"
)

var (
	pcapFile = flag.String("pcap", "", "path to the pcap file to replay")
	tcpPort  = flag.Int("port", 4509, "ciNet TCP port to filter on")
	dbPath   = flag.String("db", "", "optional sqlite database to resolve device passphrases against and persist decoded positions into")
)

// result accumulates per-device counters for the closing summary report.
type result struct {
	Frames       int
	Parsed       int
	UnknownFrame int // structurally invalid (bad header/CRC)
	ByDevice     map[uint32]int
}

func main() {
	flag.Parse()
	if *pcapFile == "" {
		log.Fatal("pcapreplay: -pcap is required")
	}

	handle, err := pcap.OpenOffline(*pcapFile)
	if err != nil {
		log.Fatalf("failed to open pcap file %s: %v", *pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("tcp port %d", *tcpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		log.Fatalf("failed to set BPF filter %q: %v", filterStr, err)
	}

	var st store.Store
	if *dbPath != "" {
		s, err := sqlitestore.Open(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database %s: %v", *dbPath, err)
		}
		st = s
	}

	res := &result{ByDevice: make(map[uint32]int)}
	pool := tcpassembly.NewStreamPool(&frameStreamFactory{res: res, store: st})
	assembler := tcpassembly.NewAssembler(pool)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	start := time.Now()
	packetCount := 0
	for packet := range packetSource.Packets() {
		packetCount++
		tcpLayer := packet.Layer(layers.LayerTypeTCP)
		if tcpLayer == nil {
			continue
		}
		tcp, ok := tcpLayer.(*layers.TCP)
		if !ok {
			continue
		}
		assembler.AssembleWithTimestamp(packet.NetworkLayer().NetworkFlow(), tcp, packet.Metadata().Timestamp)
	}
	assembler.FlushAll()

	elapsed := time.Since(start)
	printSummary(res, packetCount, elapsed)
}

// frameStreamFactory builds one frameStream per TCP half-connection so that
// each direction's byte stream is reassembled and searched for frames
// independently (ciNet frames flow one-way, beacon to server).
type frameStreamFactory struct {
	res   *result
	store store.Store
}

func (f *frameStreamFactory) New(net, transport gopacket.Flow) tcpassembly.Stream {
	return &frameStream{res: f.res, store: f.store, cache: cinet.NewCipherCache()}
}

// frameStream buffers one direction's bytes and drains complete 149-byte
// frames exactly as internal/ingest/handler.go's drainFrames does for a live
// connection — replay must see the same framing behavior production does.
type frameStream struct {
	res   *result
	store store.Store
	cache *cinet.CipherCache
	buf   []byte
}

func (s *frameStream) Reassembled(reassemblies []tcpassembly.Reassembly) {
	for _, r := range reassemblies {
		s.buf = append(s.buf, r.Bytes...)
	}
	for len(s.buf) >= cinet.FrameLen {
		frame := append([]byte(nil), s.buf[:cinet.FrameLen]...)
		s.buf = s.buf[cinet.FrameLen:]
		s.res.Frames++

		deviceKey, err := cinet.ExtractDeviceKey(frame)
		if err != nil {
			s.res.UnknownFrame++
			continue
		}
		s.res.ByDevice[deviceKey]++
		s.res.Parsed++

		if s.store == nil {
			continue
		}
		s.decodeAndPersist(frame, deviceKey)
	}
}

func (s *frameStream) decodeAndPersist(frame []byte, deviceKey uint32) {
	ctx := context.Background()
	device, err := s.store.FindDeviceByKey(ctx, deviceKey)
	if err != nil {
		if err != store.ErrDeviceNotFound {
			log.Printf("pcapreplay: device lookup failed for key %#08x: %v", deviceKey, err)
		}
		return
	}
	ev, err := cinet.Parse(frame, s.cache, device.Passphrase)
	if err != nil {
		log.Printf("pcapreplay: decrypt failed for device %d: %v", device.ID, err)
		return
	}
	pos := model.FromParsedEvent(device.ID, ev)
	if err := s.store.InsertPosition(ctx, pos); err != nil {
		log.Printf("pcapreplay: insert failed for device %d: %v", device.ID, err)
	}
}

func (s *frameStream) ReassemblyComplete() {}

func printSummary(res *result, packetCount int, elapsed time.Duration) {
	fmt.Fprintf(os.Stdout, "pcapreplay: %d packets, %d candidate frames, %d structurally valid, %d rejected (%v)\n",
		packetCount, res.Frames, res.Parsed, res.UnknownFrame, elapsed)

	keys := make([]uint32, 0, len(res.ByDevice))
	for k := range res.ByDevice {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		fmt.Fprintf(os.Stdout, "  device %#08x: %d frames\n", k, res.ByDevice[k])
	}
}
