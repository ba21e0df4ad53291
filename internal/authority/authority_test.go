package authority

import (
	"sync"
	"testing"
	"time"

	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/component"
	"github.com/andersfylling/hooksmp/internal/ecs"
	"github.com/andersfylling/hooksmp/internal/entityclass"
	"github.com/andersfylling/hooksmp/internal/event"
	"github.com/andersfylling/hooksmp/internal/ids"
	"github.com/andersfylling/hooksmp/internal/protocol"
	"github.com/andersfylling/hooksmp/internal/session"
	"github.com/andersfylling/hooksmp/internal/tickhistory"
	"github.com/andersfylling/hooksmp/internal/transport"
	arkecs "github.com/mlange-42/ark/ecs"
)

type recordingHost struct {
	mu   sync.Mutex
	sent []struct {
		peer transport.PeerID
		data []byte
	}
}

func (h *recordingHost) Service(time.Duration) (transport.Event, error) { return transport.Event{}, nil }
func (h *recordingHost) Send(peer transport.PeerID, channel protocol.ChannelID, flag protocol.PacketFlag, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, struct {
		peer transport.PeerID
		data []byte
	}{peer, append([]byte(nil), data...)})
	return nil
}
func (h *recordingHost) Disconnect(transport.PeerID, protocol.LeaveReason) error { return nil }
func (h *recordingHost) Flush() error                                           { return nil }
func (h *recordingHost) Close() error                                          { return nil }

type authIntValue int

func (v authIntValue) Encode(w *codec.Writer)           { w.WriteUint32(uint32(v)) }
func (v authIntValue) Equal(other component.Value) bool { return v == other.(authIntValue) }
func (v authIntValue) Distance(other component.Value) float64 {
	return float64(int(v) - int(other.(authIntValue)))
}

func decodeAuthIntValue(r *codec.Reader) (component.Value, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return authIntValue(n), nil
}

func newTestRunner(t *testing.T) (*Runner, *recordingHost) {
	t.Helper()
	evReg := event.NewRegistry()
	classes := entityclass.NewRegistry()
	classes.Register("counter", []component.Type{{Name: "health", Decode: decodeAuthIntValue}}, nil)

	reg := ecs.NewRegistry(evReg)
	world, err := reg.Finalize(arkecs.NewWorld(), true)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	history := tickhistory.New(evReg, classes)
	sessions := session.NewManager()
	host := &recordingHost{}

	return NewRunner(world, classes, history, sessions, host), host
}

func TestQueueInputRateLimiterDropsBurst(t *testing.T) {
	r, _ := newTestRunner(t)

	r.QueueInput(1, protocol.PlayerInput{Intents: protocol.IntentLeft}, 1)
	r.QueueInput(1, protocol.PlayerInput{Intents: protocol.IntentRight}, 1)

	r.mu.Lock()
	got := r.pendingInput[1]
	r.mu.Unlock()
	if got.Intents != protocol.IntentLeft {
		t.Fatalf("expected the first input to win under the rate limit, got %#v", got)
	}
}

func TestLastAppliedTickDefaultsToZero(t *testing.T) {
	r, _ := newTestRunner(t)
	if r.LastAppliedTick(7) != 0 {
		t.Fatalf("expected 0 for a player with no applied tick, got %d", r.LastAppliedTick(7))
	}
}

func TestTickAppliesInputAndSendsDeltaToIngamePeers(t *testing.T) {
	r, host := newTestRunner(t)

	peer, err := r.Sessions.HandleWishConnect(5, "astrid")
	if err != nil {
		t.Fatalf("HandleWishConnect: %v", err)
	}
	if _, err := r.Sessions.HandleReady(5); err != nil {
		t.Fatalf("HandleReady: %v", err)
	}

	var inputApplied protocol.Intent
	r.OnInput(func(_ *ecs.World, player ids.PlayerID, input protocol.PlayerInput) {
		if player == peer.Player {
			inputApplied = input.Intents
		}
	})

	r.QueueInput(peer.Player, protocol.PlayerInput{Intents: protocol.IntentAttack}, 1000)

	if err := r.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if inputApplied != protocol.IntentAttack {
		t.Fatalf("expected the input handler to observe IntentAttack, got %v", inputApplied)
	}
	if r.LastAppliedTick(peer.Player) != r.World.Tick {
		t.Fatalf("expected LastAppliedTick == %d, got %d", r.World.Tick, r.LastAppliedTick(peer.Player))
	}

	host.mu.Lock()
	defer host.mu.Unlock()
	if len(host.sent) != 1 {
		t.Fatalf("expected one send to the single ingame peer, got %d", len(host.sent))
	}
	if host.sent[0].peer != peer.Transport {
		t.Fatalf("expected the send addressed to transport peer %d, got %d", peer.Transport, host.sent[0].peer)
	}
	if len(host.sent[0].data) == 0 || host.sent[0].data[0] != protocol.TickDeltaTag {
		t.Fatalf("expected the payload tagged as a tick delta, got %v", host.sent[0].data)
	}
}

func TestTickDeliversQueuedPlayerEventsOnlyToThatPeer(t *testing.T) {
	r, host := newTestRunner(t)
	session.RegisterEvents(r.World.Events)

	first, err := r.Sessions.HandleWishConnect(1, "astrid")
	if err != nil {
		t.Fatalf("HandleWishConnect: %v", err)
	}
	if _, err := r.Sessions.HandleReady(1); err != nil {
		t.Fatalf("HandleReady: %v", err)
	}

	second, err := r.Sessions.HandleWishConnect(2, "bram")
	if err != nil {
		t.Fatalf("HandleWishConnect: %v", err)
	}
	if _, err := r.Sessions.HandleReady(2); err != nil {
		t.Fatalf("HandleReady: %v", err)
	}

	r.Sessions.QueuePlayerEvent(second.Player, &session.PlayerJoined{Player: first.Player, Name: first.Name})

	if err := r.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	host.mu.Lock()
	defer host.mu.Unlock()
	if len(host.sent) != 2 {
		t.Fatalf("expected sends to both ingame peers, got %d", len(host.sent))
	}

	for _, sent := range host.sent {
		rd, err := codec.DecompressReader(sent.data[1:])
		if err != nil {
			t.Fatalf("DecompressReader: %v", err)
		}
		if _, err := rd.ReadUint32(); err != nil {
			t.Fatalf("read last-applied header: %v", err)
		}
		reader := tickhistory.New(r.World.Events, r.Classes)
		_, curNum, err, _ := reader.DeltaRead(rd)
		if err != nil {
			t.Fatalf("DeltaRead: %v", err)
		}
		data, _ := reader.Get(curNum)
		if sent.peer == second.Transport {
			if len(data.Events) != 1 {
				t.Fatalf("expected the roster seed delivered to the new peer, got %d events", len(data.Events))
			}
			pj, ok := data.Events[0].(*session.PlayerJoined)
			if !ok || pj.Player != first.Player {
				t.Fatalf("expected seeded PlayerJoined for %d, got %#v", first.Player, data.Events[0])
			}
		} else if sent.peer == first.Transport {
			if len(data.Events) != 0 {
				t.Fatalf("expected no roster seed delivered to the existing peer, got %d events", len(data.Events))
			}
		}
	}
}

func TestTickSkipsPeersNotYetReady(t *testing.T) {
	r, host := newTestRunner(t)
	if _, err := r.Sessions.HandleWishConnect(9, "lurking"); err != nil {
		t.Fatalf("HandleWishConnect: %v", err)
	}

	if err := r.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	host.mu.Lock()
	defer host.mu.Unlock()
	if len(host.sent) != 0 {
		t.Fatalf("expected no sends for a peer that never became Ready, got %d", len(host.sent))
	}
}
