// Package udpframe converts between packet records and Ethernet frames or IPv4 packets.
package udpframe

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/usnistgov/udpcore/core/macaddr"
	"github.com/usnistgov/udpcore/hw/record"
	"inet.af/netaddr"
)

// Errors.
var (
	ErrNotUDP = errors.New("not an IPv4 UDP packet")
	ErrNotARP = errors.New("not an ARP packet")
)

// Header lengths.
const (
	EthernetHeaderLen = 14
	IPv4HeaderLen     = 20
	UDPHeaderLen      = 8
	// MTU is the largest IPv4 packet carried in one Ethernet frame.
	MTU = 1500
	// MaxPayload is the largest UDP payload that avoids IPv4 fragmentation.
	MaxPayload = MTU - IPv4HeaderLen - UDPHeaderLen
)

// DefaultTTL is the TTL of composed IPv4 packets.
const DefaultTTL = 64

var serializeOpts = gopacket.SerializeOptions{
	FixLengths:       true,
	ComputeChecksums: true,
}

func ipOf(ip netaddr.IP) net.IP {
	a := ip.As4()
	return net.IP(a[:])
}

func fromIP(ip net.IP) netaddr.IP {
	addr, _ := netaddr.FromStdIP(ip)
	return addr
}

func networkLayers(rec record.Record) (ip *layers.IPv4, udp *layers.UDP) {
	ip = &layers.IPv4{
		Version:  4,
		TTL:      DefaultTTL,
		Flags:    layers.IPv4DontFragment,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ipOf(rec.SrcIP),
		DstIP:    ipOf(rec.DstIP),
	}
	udp = &layers.UDP{
		SrcPort: layers.UDPPort(rec.SrcPort),
		DstPort: layers.UDPPort(rec.DstPort),
	}
	udp.SetNetworkLayerForChecksum(ip)
	return
}

// Compose builds an Ethernet frame carrying rec.
func Compose(rec record.Record, src, dst net.HardwareAddr) ([]byte, error) {
	if !macaddr.IsValid(src) || !macaddr.IsValid(dst) {
		return nil, errors.New("invalid MAC address")
	}
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip, udp := networkLayers(rec)
	buf := gopacket.NewSerializeBuffer()
	if e := gopacket.SerializeLayers(buf, serializeOpts, eth, ip, udp, gopacket.Payload(rec.Payload)); e != nil {
		return nil, fmt.Errorf("gopacket.SerializeLayers %w", e)
	}
	return buf.Bytes(), nil
}

// ComposeIPv4 builds an IPv4 packet carrying rec.
func ComposeIPv4(rec record.Record) ([]byte, error) {
	ip, udp := networkLayers(rec)
	buf := gopacket.NewSerializeBuffer()
	if e := gopacket.SerializeLayers(buf, serializeOpts, ip, udp, gopacket.Payload(rec.Payload)); e != nil {
		return nil, fmt.Errorf("gopacket.SerializeLayers %w", e)
	}
	return buf.Bytes(), nil
}

// ARP is an Ethernet/IPv4 ARP message.
type ARP struct {
	Operation uint16
	SenderMAC net.HardwareAddr
	SenderIP  netaddr.IP
	TargetMAC net.HardwareAddr
	TargetIP  netaddr.IP
}

// ARP operations.
const (
	ARPRequest = layers.ARPRequest
	ARPReply   = layers.ARPReply
)

// ComposeARP builds an Ethernet frame carrying an ARP message.
// Requests are broadcast; replies are sent to the target.
func ComposeARP(a ARP) ([]byte, error) {
	dst, targetMAC := a.TargetMAC, a.TargetMAC
	if a.Operation == ARPRequest {
		dst, targetMAC = macaddr.Broadcast, net.HardwareAddr{0, 0, 0, 0, 0, 0}
	}
	eth := &layers.Ethernet{
		SrcMAC:       a.SenderMAC,
		DstMAC:       dst,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         a.Operation,
		SourceHwAddress:   a.SenderMAC,
		SourceProtAddress: ipOf(a.SenderIP),
		DstHwAddress:      targetMAC,
		DstProtAddress:    ipOf(a.TargetIP),
	}
	buf := gopacket.NewSerializeBuffer()
	if e := gopacket.SerializeLayers(buf, serializeOpts, eth, arp); e != nil {
		return nil, fmt.Errorf("gopacket.SerializeLayers %w", e)
	}
	return buf.Bytes(), nil
}
