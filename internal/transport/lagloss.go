package transport

import (
	"container/heap"
	"math/rand"
	"sync"
	"time"

	"github.com/andersfylling/hooksmp/internal/protocol"
)

// LagLossConfig configures the development/testing shim.
type LagLossConfig struct {
	// Lag is added to every outbound command's effective send time.
	Lag time.Duration
	// Loss is the probability, in [0,1], that a queued command is dropped
	// instead of flushed.
	Loss float64
}

type commandKind int

const (
	cmdSend commandKind = iota
	cmdDisconnect
)

type command struct {
	kind    commandKind
	peer    PeerID
	channel protocol.ChannelID
	flag    protocol.PacketFlag
	data    []byte
	code    protocol.LeaveReason
}

type payload struct {
	due time.Time
	cmd command
}

// payloadHeap is a min-heap ordered by due time.
type payloadHeap []payload

func (h payloadHeap) Len() int            { return len(h) }
func (h payloadHeap) Less(i, j int) bool  { return h[i].due.Before(h[j].due) }
func (h payloadHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *payloadHeap) Push(x any)         { *h = append(*h, x.(payload)) }
func (h *payloadHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// LagLossHost wraps a Host and delays every outbound command by a
// configured lag, dropping a configured fraction before it would be sent.
// Inbound events pass through untouched: only the local side's outbound
// path is simulated, matching a client or server artificially degrading its
// own sends for testing.
type LagLossHost struct {
	inner  Host
	config LagLossConfig
	rng    *rand.Rand

	mu    sync.Mutex
	queue payloadHeap
}

// NewLagLossHost wraps inner with the given configuration.
func NewLagLossHost(inner Host, config LagLossConfig) *LagLossHost {
	return &LagLossHost{
		inner:  inner,
		config: config,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (h *LagLossHost) push(cmd command) {
	h.mu.Lock()
	heap.Push(&h.queue, payload{due: time.Now().Add(h.config.Lag), cmd: cmd})
	h.mu.Unlock()
}

// flush runs every due command through the real host, dropping a fraction
// per Loss.
func (h *LagLossHost) flush() {
	now := time.Now()
	h.mu.Lock()
	var due []command
	for h.queue.Len() > 0 && !h.queue[0].due.After(now) {
		due = append(due, heap.Pop(&h.queue).(payload).cmd)
	}
	h.mu.Unlock()

	for _, cmd := range due {
		if h.config.Loss > 0 && h.rng.Float64() < h.config.Loss {
			continue
		}
		switch cmd.kind {
		case cmdSend:
			_ = h.inner.Send(cmd.peer, cmd.channel, cmd.flag, cmd.data)
		case cmdDisconnect:
			_ = h.inner.Disconnect(cmd.peer, cmd.code)
		}
	}
}

// Service flushes due commands first, then delegates.
func (h *LagLossHost) Service(timeout time.Duration) (Event, error) {
	h.flush()
	return h.inner.Service(timeout)
}

// Send enqueues the command for delayed delivery.
func (h *LagLossHost) Send(peer PeerID, channel protocol.ChannelID, flag protocol.PacketFlag, data []byte) error {
	h.push(command{kind: cmdSend, peer: peer, channel: channel, flag: flag, data: append([]byte(nil), data...)})
	return nil
}

// Disconnect enqueues the disconnect for delayed delivery.
func (h *LagLossHost) Disconnect(peer PeerID, code protocol.LeaveReason) error {
	h.push(command{kind: cmdDisconnect, peer: peer, code: code})
	return nil
}

// Flush runs every currently-due command immediately, then forwards to the
// inner host.
func (h *LagLossHost) Flush() error {
	h.flush()
	return h.inner.Flush()
}

// Close flushes anything still queued, then tears down the inner host.
func (h *LagLossHost) Close() error {
	h.mu.Lock()
	for h.queue.Len() > 0 {
		p := heap.Pop(&h.queue).(payload)
		h.mu.Unlock()
		switch p.cmd.kind {
		case cmdSend:
			_ = h.inner.Send(p.cmd.peer, p.cmd.channel, p.cmd.flag, p.cmd.data)
		case cmdDisconnect:
			_ = h.inner.Disconnect(p.cmd.peer, p.cmd.code)
		}
		h.mu.Lock()
	}
	h.mu.Unlock()
	return h.inner.Close()
}
