// Package transport implements the channelled connect/receive/disconnect
// transport interface the rest of the engine is built on, backed by QUIC: a
// reliable ordered stream carries the COMM channel, unreliable datagrams
// (tagged with a leading channel byte) carry GAME and TIME. An optional
// lag/loss shim wraps any Host for local development and testing.
package transport

import (
	"errors"
	"time"

	"github.com/andersfylling/hooksmp/internal/protocol"
)

// PeerID identifies one connected remote endpoint for the lifetime of the
// connection. Distinct from ids.PlayerID, which is assigned only once a
// peer finishes the COMM handshake.
type PeerID uint32

// EventKind tags the variant of an Event returned by Service.
type EventKind int

const (
	// EventNone means the service call's timeout elapsed with nothing to
	// report.
	EventNone EventKind = iota
	EventConnect
	EventReceive
	EventDisconnect
)

// Event is the single polling primitive exposed by a Host.
type Event struct {
	Kind    EventKind
	Peer    PeerID
	Channel protocol.ChannelID
	Data    []byte
	Code    protocol.LeaveReason
}

// ErrSendFailed is returned when a send could not be delivered to the
// transport layer (peer vanished, stream closed, etc).
var ErrSendFailed = errors.New("transport: send failed")

// ErrServiceFailed wraps lower-level transport failures surfaced from
// Service.
var ErrServiceFailed = errors.New("transport: service failed")

// Host is the interface the rest of the engine programs against. A quic-go
// backed implementation and a lag/loss-simulating wrapper both satisfy it.
type Host interface {
	// Service blocks up to timeout waiting for the next event. timeout==0
	// polls without blocking, matching the hot-path default.
	Service(timeout time.Duration) (Event, error)
	// Send delivers bytes to peer on channel with the given reliability
	// flag.
	Send(peer PeerID, channel protocol.ChannelID, flag protocol.PacketFlag, data []byte) error
	// Disconnect closes the connection to peer, carrying code as the
	// application-level leave reason.
	Disconnect(peer PeerID, code protocol.LeaveReason) error
	// Flush forces any buffered outbound commands to be issued immediately.
	Flush() error
	// Close tears down the host and every connection it holds.
	Close() error
}
