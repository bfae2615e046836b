// Package record encodes packet records stored in shared memory slots.
//
// A record starts with five little-endian 64-bit words: payload size, source IPv4 address,
// source port, destination IPv4 address, destination port. The payload follows immediately.
// IPv4 addresses are stored as their 32-bit numeric value, so 192.168.1.2 is 0xC0A80102.
package record

import (
	"encoding/binary"
	"errors"
	"fmt"

	"inet.af/netaddr"
)

// HeaderLen is the length of record header.
const HeaderLen = 40

// Errors.
var (
	ErrTruncated = errors.New("record exceeds slot capacity")
	ErrMalformed = errors.New("malformed record header")
)

// Record is a UDP datagram with addressing.
type Record struct {
	SrcIP   netaddr.IP
	SrcPort uint16
	DstIP   netaddr.IP
	DstPort uint16
	Payload []byte
}

func (rec Record) String() string {
	return fmt.Sprintf("%s -> %s len=%d", netaddr.IPPortFrom(rec.SrcIP, rec.SrcPort), netaddr.IPPortFrom(rec.DstIP, rec.DstPort), len(rec.Payload))
}

// Header is the fixed-size portion of a record.
type Header struct {
	PayloadSize uint64
	SrcIP       uint64
	SrcPort     uint64
	DstIP       uint64
	DstPort     uint64
}

// MarshalBinary encodes the header.
func (h Header) MarshalBinary() (wire []byte, e error) {
	wire = make([]byte, HeaderLen)
	binary.LittleEndian.PutUint64(wire[0:], h.PayloadSize)
	binary.LittleEndian.PutUint64(wire[8:], h.SrcIP)
	binary.LittleEndian.PutUint64(wire[16:], h.SrcPort)
	binary.LittleEndian.PutUint64(wire[24:], h.DstIP)
	binary.LittleEndian.PutUint64(wire[32:], h.DstPort)
	return wire, nil
}

// UnmarshalBinary decodes the header.
func (h *Header) UnmarshalBinary(wire []byte) error {
	if len(wire) < HeaderLen {
		return fmt.Errorf("%w: short header %d", ErrMalformed, len(wire))
	}
	h.PayloadSize = binary.LittleEndian.Uint64(wire[0:])
	h.SrcIP = binary.LittleEndian.Uint64(wire[8:])
	h.SrcPort = binary.LittleEndian.Uint64(wire[16:])
	h.DstIP = binary.LittleEndian.Uint64(wire[24:])
	h.DstPort = binary.LittleEndian.Uint64(wire[32:])
	return nil
}

// Validate checks port and address ranges.
func (h Header) Validate() error {
	if h.SrcPort > 0xFFFF || h.DstPort > 0xFFFF {
		return fmt.Errorf("%w: port out of range", ErrMalformed)
	}
	if h.SrcIP > 0xFFFFFFFF || h.DstIP > 0xFFFFFFFF {
		return fmt.Errorf("%w: address out of range", ErrMalformed)
	}
	return nil
}

// Header builds the header of a record.
func (rec Record) Header() Header {
	return Header{
		PayloadSize: uint64(len(rec.Payload)),
		SrcIP:       uint64(IPToUint32(rec.SrcIP)),
		SrcPort:     uint64(rec.SrcPort),
		DstIP:       uint64(IPToUint32(rec.DstIP)),
		DstPort:     uint64(rec.DstPort),
	}
}

// WireLen returns encoded length.
func (rec Record) WireLen() int {
	return HeaderLen + len(rec.Payload)
}

// Encode writes the record into a slot of capacity len(slot).
// If the record does not fit, it returns ErrTruncated and writes nothing.
func (rec Record) Encode(slot []byte) error {
	if rec.WireLen() > len(slot) {
		return fmt.Errorf("%w: %d > %d", ErrTruncated, rec.WireLen(), len(slot))
	}
	hdr, _ := rec.Header().MarshalBinary()
	copy(slot, hdr)
	copy(slot[HeaderLen:], rec.Payload)
	return nil
}

// Decode reads a record from a slot.
// If the declared payload size exceeds slot capacity, it returns the record with Payload
// truncated to the available octets, together with ErrTruncated.
func Decode(slot []byte) (rec Record, e error) {
	var h Header
	if e = h.UnmarshalBinary(slot); e != nil {
		return rec, e
	}
	return FromHeader(h, slot[HeaderLen:])
}

// FromHeader combines a decoded header with the octets following it.
func FromHeader(h Header, body []byte) (rec Record, e error) {
	if e = h.Validate(); e != nil {
		return rec, e
	}
	rec.SrcIP = IPFromUint32(uint32(h.SrcIP))
	rec.SrcPort = uint16(h.SrcPort)
	rec.DstIP = IPFromUint32(uint32(h.DstIP))
	rec.DstPort = uint16(h.DstPort)

	n := len(body)
	if h.PayloadSize > uint64(n) {
		e = fmt.Errorf("%w: payload %d exceeds %d", ErrTruncated, h.PayloadSize, n)
	} else {
		n = int(h.PayloadSize)
	}
	rec.Payload = make([]byte, n)
	copy(rec.Payload, body)
	return rec, e
}

// IPToUint32 converts an IPv4 address to its numeric value.
// Other addresses become zero.
func IPToUint32(ip netaddr.IP) uint32 {
	if !ip.Is4() {
		return 0
	}
	a := ip.As4()
	return binary.BigEndian.Uint32(a[:])
}

// IPFromUint32 converts a numeric value to an IPv4 address.
func IPFromUint32(v uint32) netaddr.IP {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netaddr.IPv4(b[0], b[1], b[2], b[3])
}
