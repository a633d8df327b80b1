package capture

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapng section header block type, as it appears in the first 4 bytes of a file.
var pcapngMagic = []byte{0x0A, 0x0D, 0x0D, 0x0A}

var errNoTransport = errors.New("no TCP header in IP packet")

// ErrFrameTruncated is wrapped by the DecodeError of a frame cut short by the
// capture snapshot length. Its TCP payload is incomplete and cannot be used.
var ErrFrameTruncated = errors.New("frame truncated by snapshot length")

// Reader decodes frames from a pcap or pcapng stream.
// Non-TCP traffic (ARP, UDP, ICMP, ...) is skipped silently.
type Reader struct {
	data     gopacket.PacketDataSource
	linkType layers.LinkType
	closer   io.Closer
	frame    int
}

// Open opens a capture file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening capture %s: %w", path, err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading capture %s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader detects the capture format (pcap or pcapng) and prepares decoding.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(pcapngMagic))
	if err != nil {
		return nil, fmt.Errorf("reading capture magic: %w", err)
	}

	if bytes.Equal(magic, pcapngMagic) {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return nil, fmt.Errorf("parsing pcapng header: %w", err)
		}
		return &Reader{data: ng, linkType: ng.LinkType()}, nil
	}

	pr, err := pcapgo.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("parsing pcap header: %w", err)
	}
	return &Reader{data: pr, linkType: pr.LinkType()}, nil
}

// LinkType returns the link type of the capture.
func (r *Reader) LinkType() layers.LinkType {
	return r.linkType
}

// Close closes the underlying file if the reader was created by Open.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Next implements Source.
func (r *Reader) Next() (Segment, error) {
	for {
		data, ci, err := r.data.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				// tcpdump killed mid-write leaves a partial last record.
				slog.Warn("capture ends with a truncated frame", "frame", r.frame+1)
				return Segment{}, io.EOF
			}
			if errors.Is(err, io.EOF) {
				return Segment{}, io.EOF
			}
			return Segment{}, fmt.Errorf("reading frame %d: %w", r.frame+1, err)
		}
		r.frame++

		seg, ok, err := decodeSegment(data, r.linkType, ci.CaptureLength < ci.Length)
		if err != nil {
			return Segment{}, &DecodeError{Frame: r.frame, Time: ci.Timestamp.UTC(), Err: err}
		}
		if !ok {
			continue
		}
		seg.Frame = r.frame
		seg.Time = ci.Timestamp.UTC()
		return seg, nil
	}
}

// decodeSegment extracts the TCP segment from one frame. ok is false for
// frames that decode fine but carry no TCP. snapped is set when the capture
// stored fewer bytes than were on the wire.
func decodeSegment(data []byte, linkType layers.LinkType, snapped bool) (seg Segment, ok bool, err error) {
	pkt := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{NoCopy: true})

	var (
		srcIP, dstIP net.IP
		ipPayloadLen = -1
		isTCP        bool
	)
	switch {
	case pkt.Layer(layers.LayerTypeIPv4) != nil:
		ip := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		srcIP, dstIP = ip.SrcIP, ip.DstIP
		isTCP = ip.Protocol == layers.IPProtocolTCP
		// Length 0 shows up with TSO offload; trust the captured bytes then.
		if ip.Length != 0 {
			ipPayloadLen = int(ip.Length) - int(ip.IHL)*4
		}
	case pkt.Layer(layers.LayerTypeIPv6) != nil:
		ip := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		srcIP, dstIP = ip.SrcIP, ip.DstIP
		isTCP = ip.NextHeader == layers.IPProtocolTCP
		if ip.Length != 0 {
			// Length counts extension headers too; only the TCP part matters here.
			ipPayloadLen = int(ip.Length) - ipv6ExtensionLen(pkt)
		}
	default:
		if el := pkt.ErrorLayer(); el != nil {
			return Segment{}, false, el.Error()
		}
		return Segment{}, false, nil
	}

	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		if el := pkt.ErrorLayer(); el != nil {
			return Segment{}, false, el.Error()
		}
		if isTCP {
			return Segment{}, false, errNoTransport
		}
		return Segment{}, false, nil
	}
	tcp := tcpLayer.(*layers.TCP)

	src, err := addrPort(srcIP, uint16(tcp.SrcPort))
	if err != nil {
		return Segment{}, false, err
	}
	dst, err := addrPort(dstIP, uint16(tcp.DstPort))
	if err != nil {
		return Segment{}, false, err
	}

	payload := tcp.Payload
	if ipPayloadLen >= 0 {
		n := ipPayloadLen - int(tcp.DataOffset)*4
		if n < 0 {
			return Segment{}, false, fmt.Errorf("IP payload length %d shorter than TCP header", ipPayloadLen)
		}
		switch {
		case n < len(payload):
			payload = payload[:n]
		case n > len(payload):
			return Segment{}, false, fmt.Errorf("%w: TCP payload %d of %d bytes", ErrFrameTruncated, len(payload), n)
		}
	} else if snapped {
		return Segment{}, false, fmt.Errorf("%w: no IP length to check the payload against", ErrFrameTruncated)
	}

	return Segment{
		Source:      src,
		Destination: dst,
		FIN:         tcp.FIN,
		RST:         tcp.RST,
		Payload:     payload,
	}, true, nil
}

func ipv6ExtensionLen(pkt gopacket.Packet) int {
	n := 0
	for _, l := range pkt.Layers() {
		switch l.LayerType() {
		case layers.LayerTypeIPv6HopByHop, layers.LayerTypeIPv6Destination,
			layers.LayerTypeIPv6Routing, layers.LayerTypeIPv6Fragment:
			n += len(l.LayerContents())
		}
	}
	return n
}

func addrPort(ip net.IP, port uint16) (netip.AddrPort, error) {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("invalid IP address %v", ip)
	}
	return netip.AddrPortFrom(addr.Unmap(), port), nil
}
