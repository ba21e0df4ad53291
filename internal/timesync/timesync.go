// Package timesync implements the per-peer RTT estimator: a periodic
// Ping/Pong exchange on the TIME channel, sampled into a rolling window.
package timesync

import (
	"math"
	"time"

	"github.com/andersfylling/hooksmp/internal/protocol"
	"github.com/andersfylling/hooksmp/internal/transport"
	"golang.org/x/time/rate"
)

// SendPingHz is how often a Ping is sent per peer.
const SendPingHz = 0.5

// NumPingSamples bounds the rolling RTT sample window.
const NumPingSamples = 20

// Peer tracks one remote endpoint's clock/RTT state.
type Peer struct {
	start     time.Time
	limiter   *rate.Limiter
	samples   []float32 // ring-ish buffer, oldest at index 0
}

// NewPeer returns a Peer clock starting now, sending pings at SendPingHz.
func NewPeer() *Peer {
	return &Peer{
		start:   time.Now(),
		limiter: rate.NewLimiter(rate.Limit(SendPingHz), 1),
	}
}

// now returns seconds elapsed since the peer clock started.
func (p *Peer) now() float32 {
	return float32(time.Since(p.start).Seconds())
}

// Update sends a Ping on the TIME channel if the send timer has triggered.
// host/peer identify where to send it; channel is always TIME, unsequenced.
func (p *Peer) Update(host transport.Host, peer transport.PeerID) error {
	if !p.limiter.Allow() {
		return nil
	}
	return host.Send(peer, protocol.ChannelTime, protocol.Unsequenced, protocol.EncodePing(protocol.Ping{SendTime: p.now()}))
}

// HandlePing replies to a received Ping with a Pong echoing its send time.
func (p *Peer) HandlePing(host transport.Host, peer transport.PeerID, msg protocol.Ping) error {
	return host.Send(peer, protocol.ChannelTime, protocol.Unsequenced, protocol.EncodePong(protocol.Pong{PingSendTime: msg.SendTime}))
}

// HandlePong records a new RTT sample if the exchange was well-formed
// (nonnegative elapsed time).
func (p *Peer) HandlePong(msg protocol.Pong) {
	elapsed := p.now() - msg.PingSendTime
	if elapsed < 0 {
		return
	}
	p.samples = append(p.samples, elapsed)
	if len(p.samples) > NumPingSamples {
		p.samples = p.samples[len(p.samples)-NumPingSamples:]
	}
}

// PingSecs returns the most recent RTT sample, or NaN if none has arrived
// yet.
func (p *Peer) PingSecs() float32 {
	if len(p.samples) == 0 {
		return float32(math.NaN())
	}
	return p.samples[len(p.samples)-1]
}
