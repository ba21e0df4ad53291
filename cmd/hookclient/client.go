package main

import (
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/andersfylling/hooksmp/internal/codec"
	"github.com/andersfylling/hooksmp/internal/config"
	ecsint "github.com/andersfylling/hooksmp/internal/ecs"
	"github.com/andersfylling/hooksmp/internal/game"
	"github.com/andersfylling/hooksmp/internal/ids"
	"github.com/andersfylling/hooksmp/internal/pacing"
	"github.com/andersfylling/hooksmp/internal/protocol"
	"github.com/andersfylling/hooksmp/internal/session"
	"github.com/andersfylling/hooksmp/internal/tickhistory"
	"github.com/andersfylling/hooksmp/internal/timesync"
	"github.com/andersfylling/hooksmp/internal/transport"
	"github.com/andersfylling/hooksmp/internal/view"
)

// client owns the connecting side's state: the handshake progress, the
// pacing scheduler once the server's tick rate is known, and the view
// runner once our player id has arrived.
type client struct {
	cfg    *config.ClientConfig
	logger *slog.Logger
	host   transport.Host

	world   *game.World
	history *tickhistory.History
	netTime *timesync.Peer

	serverPeer transport.PeerID
	connected  bool

	scheduler *pacing.Scheduler

	myPlayer   ids.PlayerID
	viewRunner *view.Runner

	lastAckInputTick *ids.TickNum
}

func newClient(cfg *config.ClientConfig, logger *slog.Logger, host transport.Host) *client {
	world := game.NewClientWorld()
	session.RegisterEvents(world.Core().Events)
	return &client{
		cfg:     cfg,
		logger:  logger,
		host:    host,
		world:   world,
		history: tickhistory.New(world.Core().Events, world.Classes()),
		netTime: timesync.NewPeer(),
	}
}

// run is the client's single-threaded loop: service the transport, advance
// the time-sync peer, and let the pacing scheduler decide when a local tick
// (possibly more than one, under warp) should fire.
func (c *client) run() {
	last := time.Now()
	for {
		now := time.Now()
		delta := now.Sub(last).Seconds()
		last = now

		if c.scheduler != nil {
			c.scheduler.Update(delta, c.oneWayPingSecs(), c.onTick)
		}

		ev, err := c.host.Service(2 * time.Millisecond)
		if err != nil {
			c.logger.Error("transport service failed", "err", err)
			continue
		}
		c.handleEvent(ev)

		if c.connected {
			if err := c.netTime.Update(c.host, c.serverPeer); err != nil {
				c.logger.Error("ping send failed", "err", err)
			}
		}
	}
}

func (c *client) oneWayPingSecs() float32 {
	rtt := c.netTime.PingSecs()
	if math.IsNaN(float64(rtt)) {
		return 0
	}
	return rtt / 2
}

// onTick is the pacing scheduler's trigger callback: run the view runner for
// one played tick, then announce it to the server. data/snap for a tick
// beyond what the server has sent yet are simply absent, leaving that tick
// as pure local prediction with no correction.
func (c *client) onTick(tick, target ids.TickNum) {
	if c.viewRunner == nil {
		return
	}
	data, _ := c.history.Get(tick)
	input := protocol.PlayerInput{} // no input device; see package doc

	result, err := c.viewRunner.Tick(tick, data.Events, data.Snapshot, c.lastAckInputTick, input)
	if err != nil {
		c.logger.Error("view tick failed", "tick", tick, "err", err)
		return
	}
	c.world.SyncPlayerEntities()
	if result.Corrected {
		c.logger.Debug("prediction corrected", "tick", tick, "error", result.PredictionError)
	}
	if result.MissingLogEntry {
		c.logger.Warn("prediction log missing entry for correction tick", "tick", tick)
	}

	msg := protocol.EncodeStartedTick(protocol.StartedTick{Tick: tick, TargetTick: target, Input: input})
	if err := c.host.Send(c.serverPeer, protocol.ChannelGame, protocol.Unsequenced, msg); err != nil {
		c.logger.Error("send started-tick failed", "err", err)
	}
}

func (c *client) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventNone:
		return
	case transport.EventConnect:
		c.serverPeer = ev.Peer
		c.connected = true
		c.sendComm(protocol.WishConnect{Name: c.cfg.PlayerName})
	case transport.EventReceive:
		c.handleReceive(ev)
	case transport.EventDisconnect:
		c.logger.Error("disconnected from server", "reason", ev.Code.String())
		os.Exit(1)
	}
}

func (c *client) handleReceive(ev transport.Event) {
	switch ev.Channel {
	case protocol.ChannelComm:
		c.handleComm(ev.Data)
	case protocol.ChannelGame:
		c.handleGame(ev.Data)
	case protocol.ChannelTime:
		c.handleTime(ev.Data)
	}
}

func (c *client) handleComm(data []byte) {
	msg, err := protocol.DecodeComm(data)
	if err != nil {
		c.logger.Error("malformed comm message", "err", err)
		return
	}
	switch m := msg.(type) {
	case protocol.AcceptConnect:
		c.scheduler = pacing.NewScheduler(float64(m.Info.TicksPerSecond), float64(m.Info.TicksPerSnapshot))
		c.logger.Info("accepted", "tps", m.Info.TicksPerSecond, "ticks_per_snapshot", m.Info.TicksPerSnapshot)
	case protocol.JoinGame:
		c.myPlayer = m.PlayerID
		c.viewRunner = view.NewRunner(c.world.Core(), c.world.Classes(), c.myPlayer, view.Handlers{
			RunInput: func(_ *ecsint.World, input protocol.PlayerInput) {
				c.world.ApplyLocalInput(c.myPlayer, input)
			},
			Ensure: c.world.EnsureEntity,
			Exclude: func(id ids.EntityID) bool {
				return c.world.IsLocalPlayerEntity(c.myPlayer, id)
			},
		})
		c.viewRunner.EnablePrediction()
		c.logger.Info("joined", "player", c.myPlayer)
		c.sendComm(protocol.Ready{})
	}
}

func (c *client) handleGame(data []byte) {
	msg, rest, err := protocol.DecodeGame(data)
	if err != nil {
		c.logger.Error("malformed game message", "err", err)
		return
	}
	if rest != nil {
		c.handleTickDelta(rest)
		return
	}
	_ = msg // StartedTick/ReceivedTick are client -> server only
}

func (c *client) handleTickDelta(rest []byte) {
	r, err := codec.DecompressReader(rest)
	if err != nil {
		c.logger.Error("decompress tick delta failed", "err", err)
		return
	}
	lastRaw, err := r.ReadUint32()
	if err != nil {
		c.logger.Error("read tick delta header failed", "err", err)
		return
	}
	var lastAck *ids.TickNum
	if lastRaw > 0 {
		v := ids.TickNum(lastRaw)
		lastAck = &v
	}

	prevNum, curNum, err, stale := c.history.DeltaRead(r)
	if err != nil {
		c.logger.Error("tick delta decode failed", "err", err)
		return
	}
	if stale {
		return
	}

	c.lastAckInputTick = lastAck
	if c.scheduler != nil {
		c.scheduler.OnGamePacket(curNum, prevNum, true)
		c.history.PruneOlder(c.scheduler.PruneBoundary())
	}

	data := protocol.EncodeReceivedTick(protocol.ReceivedTick{Tick: curNum})
	if err := c.host.Send(c.serverPeer, protocol.ChannelGame, protocol.Unsequenced, data); err != nil {
		c.logger.Error("send received-tick failed", "err", err)
	}
}

func (c *client) handleTime(data []byte) {
	msg, err := protocol.DecodeTime(data)
	if err != nil {
		return
	}
	switch m := msg.(type) {
	case protocol.Ping:
		_ = c.netTime.HandlePing(c.host, c.serverPeer, m)
	case protocol.Pong:
		c.netTime.HandlePong(m)
	}
}

func (c *client) sendComm(msg any) {
	data, err := protocol.EncodeComm(msg)
	if err != nil {
		c.logger.Error("encode comm message failed", "err", err)
		return
	}
	if err := c.host.Send(c.serverPeer, protocol.ChannelComm, protocol.Reliable, data); err != nil {
		c.logger.Error("send comm message failed", "err", err)
	}
}
