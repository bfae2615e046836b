package udpframe

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/usnistgov/udpcore/hw/record"
)

// Packet is a decoded Ethernet frame.
// Exactly one of ARP and UDP is set.
type Packet struct {
	SrcMAC net.HardwareAddr
	DstMAC net.HardwareAddr
	ARP    *ARP
	UDP    *record.Record
}

// Parser decodes frames and packets.
// It reuses layer structures and is not thread-safe.
type Parser struct {
	eth     layers.Ethernet
	arp     layers.ARP
	ip      layers.IPv4
	udp     layers.UDP
	decoded []gopacket.LayerType

	frameParser *gopacket.DecodingLayerParser
	ipParser    *gopacket.DecodingLayerParser
}

// NewParser creates a Parser.
func NewParser() (p *Parser) {
	p = &Parser{}
	p.frameParser = gopacket.NewDecodingLayerParser(layers.LayerTypeEthernet, &p.eth, &p.arp, &p.ip, &p.udp)
	p.frameParser.IgnoreUnsupported = true
	p.ipParser = gopacket.NewDecodingLayerParser(layers.LayerTypeIPv4, &p.ip, &p.udp)
	p.ipParser.IgnoreUnsupported = true
	return p
}

// Parse decodes an Ethernet frame.
func (p *Parser) Parse(frame []byte) (pkt Packet, e error) {
	if e = p.frameParser.DecodeLayers(frame, &p.decoded); e != nil {
		return pkt, e
	}
	var hasEth, hasIP bool
	for _, t := range p.decoded {
		switch t {
		case layers.LayerTypeEthernet:
			hasEth = true
			pkt.SrcMAC = cloneMAC(p.eth.SrcMAC)
			pkt.DstMAC = cloneMAC(p.eth.DstMAC)
		case layers.LayerTypeARP:
			if p.arp.AddrType != layers.LinkTypeEthernet || p.arp.Protocol != layers.EthernetTypeIPv4 {
				return pkt, ErrNotARP
			}
			pkt.ARP = &ARP{
				Operation: p.arp.Operation,
				SenderMAC: cloneMAC(p.arp.SourceHwAddress),
				SenderIP:  fromIP(p.arp.SourceProtAddress),
				TargetMAC: cloneMAC(p.arp.DstHwAddress),
				TargetIP:  fromIP(p.arp.DstProtAddress),
			}
		case layers.LayerTypeIPv4:
			hasIP = true
		case layers.LayerTypeUDP:
			if hasIP {
				rec := p.record()
				pkt.UDP = &rec
			}
		}
	}
	if !hasEth || (pkt.ARP == nil && pkt.UDP == nil) {
		return pkt, ErrNotUDP
	}
	return pkt, nil
}

// ParseIPv4 decodes an IPv4 packet carrying UDP.
func (p *Parser) ParseIPv4(pkt []byte) (rec record.Record, e error) {
	if e = p.ipParser.DecodeLayers(pkt, &p.decoded); e != nil {
		return rec, e
	}
	for _, t := range p.decoded {
		if t == layers.LayerTypeUDP {
			return p.record(), nil
		}
	}
	return rec, ErrNotUDP
}

func (p *Parser) record() (rec record.Record) {
	rec.SrcIP = fromIP(p.ip.SrcIP)
	rec.DstIP = fromIP(p.ip.DstIP)
	rec.SrcPort = uint16(p.udp.SrcPort)
	rec.DstPort = uint16(p.udp.DstPort)
	rec.Payload = append([]byte{}, p.udp.Payload...)
	return rec
}

func cloneMAC(a net.HardwareAddr) net.HardwareAddr {
	return append(net.HardwareAddr{}, a...)
}

// Parse decodes an Ethernet frame with a temporary Parser.
func Parse(frame []byte) (Packet, error) {
	return NewParser().Parse(frame)
}

// ParseIPv4 decodes an IPv4 packet with a temporary Parser.
func ParseIPv4(pkt []byte) (record.Record, error) {
	return NewParser().ParseIPv4(pkt)
}
