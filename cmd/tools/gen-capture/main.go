// Command gen-capture writes a synthetic pcap of drone control traffic.
// Useful for demos and for exercising the decoder end to end without a
// drone: the generated session has a known script of movements and
// commands, so the expected event log is known in advance.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/dronetrace/internal/rc"
)

var (
	out    = flag.String("out", "session.pcap", "Output pcap path")
	port   = flag.Int("port", rc.DefaultTargetPort, "UDP destination port")
	rate   = flag.Float64("rate", 10, "Control frame rate in Hz")
	jitter = flag.Int("jitter", 3, "Random stick jitter around neutral (stays inside the default deadband)")
	seed   = flag.Int64("seed", 1, "Jitter RNG seed")
)

// step is one segment of the scripted session.
type step struct {
	duration float64 // seconds
	roll     int     // deviations from neutral
	pitch    int
	throttle int
	yaw      int
	command  byte
	headless byte
}

// script is the canned flight: boot, idle, takeoff, a box of movements,
// headless toggle, land. Deviation 48 matches what the stock app sends at
// full stick.
var script = []step{
	{duration: 1.0},
	{duration: 0.5, command: 0x01}, // takeoff held for a few frames
	{duration: 1.0},
	{duration: 1.5, pitch: 48}, // forward
	{duration: 0.5},
	{duration: 1.5, roll: -48}, // left
	{duration: 0.5},
	{duration: 1.0, throttle: 48}, // up
	{duration: 0.5, headless: 0x03},
	{duration: 1.0, yaw: 36}, // yaw right
	{duration: 0.5, command: 0x03}, // land
	{duration: 1.0},
}

func main() {
	flag.Parse()

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *out, err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	cfg := rc.DefaultConfig()
	interval := 1.0 / *rate
	base := time.Now().Add(-time.Minute).Truncate(time.Second)

	packets := 0
	elapsed := 0.0

	// Boot/handshake frame first, as the app does.
	boot := []byte{cfg.StartMarker, 0x12, 0x34, cfg.EndMarker}
	if err := writeFrame(w, base, elapsed, *port, boot); err != nil {
		log.Fatalf("Failed to write boot frame: %v", err)
	}
	packets++
	elapsed += interval

	for _, s := range script {
		for t := 0.0; t < s.duration; t += interval {
			payload := controlFrame(cfg, rng, s)
			if err := writeFrame(w, base, elapsed, *port, payload); err != nil {
				log.Fatalf("Failed to write frame: %v", err)
			}
			packets++
			elapsed += interval
		}
	}

	log.Printf("Wrote %d packets (%.1fs of traffic) to %s", packets, elapsed, *out)
}

// controlFrame builds one 20-byte control frame for a script step, with
// sub-deadband jitter on every channel.
func controlFrame(cfg rc.Config, rng *rand.Rand, s step) []byte {
	payload := make([]byte, cfg.FrameLength)
	payload[0] = cfg.StartMarker
	payload[cfg.FrameLength-1] = cfg.EndMarker

	payload[cfg.ChannelOffsets[rc.AxisRoll]] = channelByte(cfg, rng, s.roll)
	payload[cfg.ChannelOffsets[rc.AxisPitch]] = channelByte(cfg, rng, s.pitch)
	payload[cfg.ChannelOffsets[rc.AxisThrottle]] = channelByte(cfg, rng, s.throttle)
	payload[cfg.ChannelOffsets[rc.AxisYaw]] = channelByte(cfg, rng, s.yaw)
	payload[cfg.CommandOffset] = s.command
	payload[cfg.HeadlessOffset] = s.headless

	var sum byte
	for _, b := range payload[2:8] {
		sum ^= b
	}
	payload[cfg.ChecksumOffset] = sum

	return payload
}

func channelByte(cfg rc.Config, rng *rand.Rand, deviation int) byte {
	j := 0
	if *jitter > 0 {
		j = rng.Intn(2**jitter+1) - *jitter
	}
	v := int(cfg.Neutral) + deviation + j
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// writeFrame wraps a payload in Ethernet/IPv4/UDP and appends it to the
// pcap with the given capture offset.
func writeFrame(w *pcapgo.Writer, base time.Time, offset float64, dport int, payload []byte) error {
	eth := layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0xaa, 0xbb, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0xcc, 0xdd, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 2),
		DstIP:    net.IPv4(192, 168, 1, 1),
	}
	udp := layers.UDP{
		SrcPort: 49152,
		DstPort: layers.UDPPort(dport),
	}
	if err := udp.SetNetworkLayerForChecksum(&ip); err != nil {
		return err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, &eth, &ip, &udp, gopacket.Payload(payload)); err != nil {
		return err
	}

	data := buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     base.Add(time.Duration(offset * float64(time.Second))),
		CaptureLength: len(data),
		Length:        len(data),
	}
	return w.WritePacket(ci, data)
}
