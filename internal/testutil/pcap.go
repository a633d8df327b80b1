package testutil

import (
	"bytes"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/udisondev/psotrace/internal/constants"
)

// Frame описывает один TCP-кадр синтетического capture.
type Frame struct {
	Time     time.Time
	Src, Dst netip.AddrPort
	FIN, RST bool
	Payload  []byte
}

// BaseTime: метка времени первого кадра по умолчанию.
var BaseTime = time.Date(2004, 3, 14, 12, 0, 0, 0, time.UTC)

var (
	clientMAC = net.HardwareAddr{0x00, 0x09, 0xbf, 0x00, 0x00, 0x01}
	serverMAC = net.HardwareAddr{0x00, 0x50, 0x56, 0x00, 0x00, 0x02}
)

// EthernetFrame сериализует Ethernet + IPv4/IPv6 + TCP кадр.
// Ethernet добивает короткие кадры нулями до 60 байт, так что
// пустые FIN/RST сегменты приходят с padding'ом.
func EthernetFrame(t testing.TB, f Frame) []byte {
	t.Helper()
	return serializeTCP(t, f, true)
}

// IPFrame сериализует IPv4/IPv6 + TCP без link-layer заголовка (LinkTypeRaw).
func IPFrame(t testing.TB, f Frame) []byte {
	t.Helper()
	return serializeTCP(t, f, false)
}

func serializeTCP(t testing.TB, f Frame, withEthernet bool) []byte {
	t.Helper()

	eth := &layers.Ethernet{SrcMAC: clientMAC, DstMAC: serverMAC}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(f.Src.Port()),
		DstPort: layers.TCPPort(f.Dst.Port()),
		Seq:     1,
		ACK:     true,
		Ack:     1,
		PSH:     len(f.Payload) > 0,
		FIN:     f.FIN,
		RST:     f.RST,
		Window:  65535,
	}

	var network gopacket.SerializableLayer
	if f.Src.Addr().Is4() {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolTCP,
			SrcIP:    f.Src.Addr().AsSlice(),
			DstIP:    f.Dst.Addr().AsSlice(),
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatalf("tcp checksum layer: %v", err)
		}
		network = ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolTCP,
			SrcIP:      f.Src.Addr().AsSlice(),
			DstIP:      f.Dst.Addr().AsSlice(),
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatalf("tcp checksum layer: %v", err)
		}
		network = ip
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	stack := []gopacket.SerializableLayer{network, tcp, gopacket.Payload(f.Payload)}
	if withEthernet {
		stack = append([]gopacket.SerializableLayer{eth}, stack...)
	}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		t.Fatalf("serializing frame: %v", err)
	}
	return buf.Bytes()
}

// UDPFrame сериализует Ethernet + IPv4 + UDP кадр (не TCP трафик).
func UDPFrame(t testing.TB, src, dst netip.AddrPort, payload []byte) []byte {
	t.Helper()

	eth := &layers.Ethernet{SrcMAC: clientMAC, DstMAC: serverMAC, EthernetType: layers.EthernetTypeIPv4}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.Addr().AsSlice(),
		DstIP:    dst.Addr().AsSlice(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(src.Port()), DstPort: layers.UDPPort(dst.Port())}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		t.Fatalf("udp checksum layer: %v", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		t.Fatalf("serializing udp frame: %v", err)
	}
	return buf.Bytes()
}

// RawFrame: кадр, записываемый в capture как есть.
// Length > len(Data) описывает кадр, обрезанный snaplen'ом.
type RawFrame struct {
	Time   time.Time
	Data   []byte
	Length int
}

func (f RawFrame) captureInfo() gopacket.CaptureInfo {
	return gopacket.CaptureInfo{Timestamp: f.Time, CaptureLength: len(f.Data), Length: max(f.Length, len(f.Data))}
}

// Frames превращает TCP-описания в сырые Ethernet кадры.
// Нулевое Time заменяется на BaseTime + i миллисекунд.
func Frames(t testing.TB, frames ...Frame) []RawFrame {
	t.Helper()

	out := make([]RawFrame, 0, len(frames))
	for i, f := range frames {
		ts := f.Time
		if ts.IsZero() {
			ts = BaseTime.Add(time.Duration(i) * time.Millisecond)
		}
		out = append(out, RawFrame{Time: ts, Data: EthernetFrame(t, f)})
	}
	return out
}

// WritePcap собирает классический pcap файл в памяти.
func WritePcap(t testing.TB, linkType layers.LinkType, frames []RawFrame) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := pcapgo.NewWriter(&buf)
	if err := w.WriteFileHeader(constants.DefaultSnapLen, linkType); err != nil {
		t.Fatalf("writing pcap header: %v", err)
	}
	for _, f := range frames {
		if err := w.WritePacket(f.captureInfo(), f.Data); err != nil {
			t.Fatalf("writing pcap record: %v", err)
		}
	}
	return buf.Bytes()
}

// WritePcapNg собирает pcapng файл в памяти.
func WritePcapNg(t testing.TB, linkType layers.LinkType, frames []RawFrame) []byte {
	t.Helper()

	var buf bytes.Buffer
	w, err := pcapgo.NewNgWriter(&buf, linkType)
	if err != nil {
		t.Fatalf("creating pcapng writer: %v", err)
	}
	for _, f := range frames {
		if err := w.WritePacket(f.captureInfo(), f.Data); err != nil {
			t.Fatalf("writing pcapng block: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flushing pcapng: %v", err)
	}
	return buf.Bytes()
}
