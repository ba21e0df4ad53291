// Package session implements the server's per-peer lifecycle: the COMM
// handshake (WishConnect/Ready), receive-ack tracking for per-peer delta
// reference selection, and disconnect bookkeeping.
package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/event"
	"github.com/andersfylling/hooksmp/internal/ids"
	"github.com/andersfylling/hooksmp/internal/protocol"
	"github.com/andersfylling/hooksmp/internal/timesync"
	"github.com/andersfylling/hooksmp/internal/transport"
	"github.com/google/uuid"
)

// State is where a peer sits in the COMM handshake.
type State int

const (
	Connected State = iota
	Ready
)

// PlayerJoined is an Order event emitted once a peer completes the
// handshake, and synthesized again (scoped to the new peer) for every
// already-ingame player so their roster is complete on the first tick.
type PlayerJoined struct {
	Player ids.PlayerID
	Name   string
}

// Class implements event.Classed.
func (PlayerJoined) Class() event.Class { return event.Order }

// PlayerLeft is an Order event emitted when a peer disconnects or is forced
// off for a protocol violation.
type PlayerLeft struct {
	Player ids.PlayerID
	Reason protocol.LeaveReason
}

// Class implements event.Classed.
func (PlayerLeft) Class() event.Class { return event.Order }

// RegisterEvents wires PlayerJoined/PlayerLeft into reg so they can cross
// the wire in a tick's event list.
func RegisterEvents(reg *event.Registry) {
	event.Register[PlayerJoined](reg, event.Order,
		func(e *PlayerJoined, w *codec.Writer) {
			w.WriteUint32(uint32(e.Player))
			w.WriteString(e.Name)
		},
		func(r *codec.Reader) (*PlayerJoined, error) {
			pid, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			name, err := r.ReadString()
			if err != nil {
				return nil, err
			}
			return &PlayerJoined{Player: ids.PlayerID(pid), Name: name}, nil
		})
	event.Register[PlayerLeft](reg, event.Order,
		func(e *PlayerLeft, w *codec.Writer) {
			w.WriteUint32(uint32(e.Player))
			_ = w.WriteByte(byte(e.Reason))
		},
		func(r *codec.Reader) (*PlayerLeft, error) {
			pid, err := r.ReadUint32()
			if err != nil {
				return nil, err
			}
			reason, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			return &PlayerLeft{Player: ids.PlayerID(pid), Reason: protocol.LeaveReason(reason)}, nil
		})
}

// Peer is one connected client's session state.
type Peer struct {
	Transport transport.PeerID
	Player    ids.PlayerID
	Name      string
	State     State
	NetTime   *timesync.Peer
	LastAck   *ids.TickNum
}

// Manager tracks every peer's session state for one match.
type Manager struct {
	MatchID uuid.UUID

	mu            sync.Mutex
	byTransport   map[transport.PeerID]*Peer
	byPlayer      map[ids.PlayerID]*Peer
	nextPlayer    ids.PlayerID
	pendingEvents map[ids.PlayerID][]event.Event
}

// NewManager returns an empty session manager stamped with a fresh match id.
func NewManager() *Manager {
	return &Manager{
		MatchID:       uuid.New(),
		byTransport:   make(map[transport.PeerID]*Peer),
		byPlayer:      make(map[ids.PlayerID]*Peer),
		pendingEvents: make(map[ids.PlayerID][]event.Event),
	}
}

// QueuePlayerEvent appends e to player's own pending queue, delivered to that
// player alone on its next delta send (see internal/authority.Runner.sendTo).
// Used to seed a newly joined peer's roster with PlayerJoined for everyone
// already ingame, without broadcasting those synthesized events to anyone
// else.
func (m *Manager) QueuePlayerEvent(player ids.PlayerID, e event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingEvents[player] = append(m.pendingEvents[player], e)
}

// DrainPlayerEvents removes and returns everything queued for player via
// QueuePlayerEvent.
func (m *Manager) DrainPlayerEvents(player ids.PlayerID) []event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := m.pendingEvents[player]
	delete(m.pendingEvents, player)
	return ev
}

// ByTransport looks up a session by its transport-level peer id.
func (m *Manager) ByTransport(t transport.PeerID) (*Peer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byTransport[t]
	return p, ok
}

// IngamePlayers returns every Ready player id in ascending order, used to
// synthesize the roster for a newly joined peer.
func (m *Manager) IngamePlayers() []*Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Peer, 0, len(m.byPlayer))
	for _, p := range m.byPlayer {
		if p.State == Ready {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player < out[j].Player })
	return out
}

// ErrAlreadyRegistered is returned by HandleWishConnect for a peer's second
// WishConnect.
var ErrAlreadyRegistered = fmt.Errorf("session: peer already registered")

// HandleWishConnect registers a not-yet-registered peer. A second
// WishConnect from the same transport peer is a protocol violation.
func (m *Manager) HandleWishConnect(t transport.PeerID, name string) (*Peer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byTransport[t]; ok {
		return nil, ErrAlreadyRegistered
	}
	m.nextPlayer++
	p := &Peer{
		Transport: t,
		Player:    m.nextPlayer,
		Name:      name,
		State:     Connected,
		NetTime:   timesync.NewPeer(),
	}
	m.byTransport[t] = p
	m.byPlayer[p.Player] = p
	return p, nil
}

// ErrNotConnected is returned by HandleReady for a peer not in state
// Connected.
var ErrNotConnected = fmt.Errorf("session: peer not in Connected state")

// HandleReady transitions a Connected peer to Ready, returning the
// PlayerJoined event to broadcast.
func (m *Manager) HandleReady(t transport.PeerID) (PlayerJoined, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byTransport[t]
	if !ok || p.State != Connected {
		return PlayerJoined{}, ErrNotConnected
	}
	p.State = Ready
	return PlayerJoined{Player: p.Player, Name: p.Name}, nil
}

// HandleReceivedTick updates LastAck if num is newer, per ack monotonicity.
// Stale/duplicate acks are silently ignored. Returns whether the ack
// advanced (the caller should then prune history).
func (m *Manager) HandleReceivedTick(t transport.PeerID, num ids.TickNum) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byTransport[t]
	if !ok {
		return false
	}
	if p.LastAck != nil && num <= *p.LastAck {
		return false
	}
	n := num
	p.LastAck = &n
	return true
}

// HandleDisconnect removes a peer's bookkeeping and reports whether they
// were ingame (Ready), in which case the caller must emit PlayerLeft.
func (m *Manager) HandleDisconnect(t transport.PeerID) (PlayerLeft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byTransport[t]
	if !ok {
		return PlayerLeft{}, false
	}
	delete(m.byTransport, t)
	delete(m.byPlayer, p.Player)
	delete(m.pendingEvents, p.Player)
	if p.State != Ready {
		return PlayerLeft{}, false
	}
	return PlayerLeft{Player: p.Player, Reason: protocol.Disconnected}, true
}

// HandleInvalid forcibly removes a peer for a protocol violation, returning
// whether they were ingame (the caller must emit PlayerLeft(..., InvalidMsg)
// in that case).
func (m *Manager) HandleInvalid(t transport.PeerID) (PlayerLeft, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byTransport[t]
	if !ok {
		return PlayerLeft{}, false
	}
	delete(m.byTransport, t)
	delete(m.byPlayer, p.Player)
	delete(m.pendingEvents, p.Player)
	if p.State != Ready {
		return PlayerLeft{}, false
	}
	return PlayerLeft{Player: p.Player, Reason: protocol.InvalidMsg}, true
}
