package main

import (
	"net"

	"github.com/usnistgov/udpcore/hw/hwsim"
	"github.com/usnistgov/udpcore/udpcore"
	"github.com/usnistgov/udpcore/udpcore/udpframe"
	"go.uber.org/zap"
)

var simPeerMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

// simPeer is the far end of a simulated link.
// It answers every ARP request and reflects every UDP packet to its sender.
type simPeer struct {
	dev    *hwsim.Device
	parser *udpframe.Parser
	queue  chan []byte
}

func newSimPeer(cfg udpcore.Config) (p *simPeer, e error) {
	p = &simPeer{
		parser: udpframe.NewParser(),
		queue:  make(chan []byte, cfg.Geometry.RingLength),
	}
	if p.dev, e = hwsim.New(hwsim.Config{Geometry: cfg.Geometry, AutoTransmit: true}); e != nil {
		return nil, e
	}
	p.dev.OnTransmit(func(frame []byte) {
		select {
		case p.queue <- frame:
		default:
			logger.Debug("simulated peer dropped a frame")
		}
	})
	go p.loop()
	return p, nil
}

func (p *simPeer) loop() {
	for frame := range p.queue {
		reply, e := p.reflect(frame)
		if e != nil || reply == nil {
			continue
		}
		if e = p.dev.Receive(reply); e != nil {
			logger.Debug("simulated peer reply rejected", zap.Error(e))
		}
	}
}

func (p *simPeer) reflect(frame []byte) ([]byte, error) {
	pkt, e := p.parser.Parse(frame)
	if e != nil {
		return nil, e
	}
	switch {
	case pkt.ARP != nil && pkt.ARP.Operation == udpframe.ARPRequest:
		return udpframe.ComposeARP(udpframe.ARP{
			Operation: udpframe.ARPReply,
			SenderMAC: simPeerMAC,
			SenderIP:  pkt.ARP.TargetIP,
			TargetMAC: pkt.ARP.SenderMAC,
			TargetIP:  pkt.ARP.SenderIP,
		})
	case pkt.UDP != nil:
		rec := *pkt.UDP
		rec.SrcIP, rec.DstIP = rec.DstIP, rec.SrcIP
		rec.SrcPort, rec.DstPort = rec.DstPort, rec.SrcPort
		return udpframe.Compose(rec, simPeerMAC, pkt.SrcMAC)
	}
	return nil, nil
}
