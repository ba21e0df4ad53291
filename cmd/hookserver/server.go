package main

import (
	"log/slog"
	"time"

	"github.com/andersfylling/hooksmp/internal/authority"
	"github.com/andersfylling/hooksmp/internal/config"
	"github.com/andersfylling/hooksmp/internal/game"
	"github.com/andersfylling/hooksmp/internal/protocol"
	"github.com/andersfylling/hooksmp/internal/session"
	"github.com/andersfylling/hooksmp/internal/tickhistory"
	"github.com/andersfylling/hooksmp/internal/transport"
)

// server owns the single-threaded poll-then-tick loop: one goroutine
// services the transport and runs the authoritative tick, so nothing else
// needs to synchronize against the ECS world.
type server struct {
	cfg     *config.ServerConfig
	logger  *slog.Logger
	host    transport.Host
	world   *game.World
	sess    *session.Manager
	runner  *authority.Runner
	history *tickhistory.History
}

func (s *server) run() {
	tickInterval := time.Second / time.Duration(s.cfg.TicksPerSecond)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.logger.Info("server listening", "addr", s.cfg.ListenAddr, "tps", s.cfg.TicksPerSecond)

	for {
		select {
		case <-ticker.C:
			if err := s.runner.Tick(); err != nil {
				s.logger.Error("tick failed", "err", err)
			}
			s.pruneHistory()
		default:
			ev, err := s.host.Service(time.Millisecond)
			if err != nil {
				s.logger.Error("transport service failed", "err", err)
				continue
			}
			s.handleEvent(ev)
		}
	}
}

func (s *server) pruneHistory() {
	peers := s.sess.IngamePlayers()
	if len(peers) == 0 {
		return
	}
	min := s.history.MaxNum()
	for _, p := range peers {
		if p.LastAck == nil {
			return // someone hasn't acked anything yet; nothing safe to prune
		}
		if *p.LastAck < min {
			min = *p.LastAck
		}
	}
	s.history.PruneOlder(min)
}

func (s *server) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventNone:
		return
	case transport.EventConnect:
		s.logger.Debug("peer connected", "peer", ev.Peer)
	case transport.EventReceive:
		s.handleReceive(ev)
	case transport.EventDisconnect:
		s.handleDisconnect(ev.Peer, ev.Code)
	}
}

func (s *server) handleReceive(ev transport.Event) {
	switch ev.Channel {
	case protocol.ChannelComm:
		s.handleComm(ev.Peer, ev.Data)
	case protocol.ChannelGame:
		s.handleGame(ev.Peer, ev.Data)
	case protocol.ChannelTime:
		s.handleTime(ev.Peer, ev.Data)
	}
}

func (s *server) handleComm(peer transport.PeerID, data []byte) {
	msg, err := protocol.DecodeComm(data)
	if err != nil {
		s.forceDisconnect(peer, protocol.InvalidMsg)
		return
	}
	switch m := msg.(type) {
	case protocol.WishConnect:
		p, err := s.sess.HandleWishConnect(peer, m.Name)
		if err != nil {
			s.forceDisconnect(peer, protocol.InvalidMsg)
			return
		}
		info := protocol.GameInfo{
			TicksPerSecond:   uint32(s.cfg.TicksPerSecond),
			TicksPerSnapshot: uint32(s.cfg.TicksPerSnapshot),
		}
		s.sendComm(peer, protocol.AcceptConnect{Info: info})
		s.sendComm(peer, protocol.JoinGame{PlayerID: p.Player})
	case protocol.Ready:
		joined, err := s.sess.HandleReady(peer)
		if err != nil {
			s.forceDisconnect(peer, protocol.InvalidMsg)
			return
		}
		s.world.SpawnPlayer(int(joined.Player), joined.Name, spawnX, spawnY)
		for _, p := range s.sess.IngamePlayers() {
			if p.Player == joined.Player {
				continue
			}
			s.sess.QueuePlayerEvent(joined.Player, &session.PlayerJoined{Player: p.Player, Name: p.Name})
		}
		s.runner.QueueExternalEvent(&joined)
	}
}

func (s *server) handleGame(peer transport.PeerID, data []byte) {
	msg, _, err := protocol.DecodeGame(data)
	if err != nil {
		s.forceDisconnect(peer, protocol.InvalidMsg)
		return
	}
	p, ok := s.sess.ByTransport(peer)
	if !ok {
		return
	}
	switch m := msg.(type) {
	case protocol.StartedTick:
		s.runner.QueueInput(p.Player, m.Input, s.cfg.InputRateLimit)
	case protocol.ReceivedTick:
		s.sess.HandleReceivedTick(peer, m.Tick)
	}
}

func (s *server) handleTime(peer transport.PeerID, data []byte) {
	msg, err := protocol.DecodeTime(data)
	if err != nil {
		return
	}
	p, ok := s.sess.ByTransport(peer)
	if !ok {
		return
	}
	switch m := msg.(type) {
	case protocol.Ping:
		_ = p.NetTime.HandlePing(s.host, peer, m)
	case protocol.Pong:
		p.NetTime.HandlePong(m)
	}
}

func (s *server) handleDisconnect(peer transport.PeerID, code protocol.LeaveReason) {
	left, wasIngame := s.sess.HandleDisconnect(peer)
	if !wasIngame {
		return
	}
	s.world.DespawnPlayer(int(left.Player))
	s.runner.QueueExternalEvent(&left)
	s.logger.Info("player left", "player", left.Player, "reason", code.String())
}

func (s *server) forceDisconnect(peer transport.PeerID, reason protocol.LeaveReason) {
	left, wasIngame := s.sess.HandleInvalid(peer)
	if wasIngame {
		s.world.DespawnPlayer(int(left.Player))
		s.runner.QueueExternalEvent(&left)
	}
	_ = s.host.Disconnect(peer, reason)
}

func (s *server) sendComm(peer transport.PeerID, msg any) {
	data, err := protocol.EncodeComm(msg)
	if err != nil {
		s.logger.Error("encode comm message failed", "err", err)
		return
	}
	if err := s.host.Send(peer, protocol.ChannelComm, protocol.Reliable, data); err != nil {
		s.logger.Error("send comm message failed", "peer", peer, "err", err)
	}
}
