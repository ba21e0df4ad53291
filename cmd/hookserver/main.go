// Command hookserver runs the dedicated, authoritative hook-combat game
// server: a QUIC listener, the session/handshake state machine, and the
// fixed-rate tick loop that drives internal/authority.
package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/andersfylling/hooksmp/internal/authority"
	"github.com/andersfylling/hooksmp/internal/config"
	"github.com/andersfylling/hooksmp/internal/ecs"
	"github.com/andersfylling/hooksmp/internal/game"
	"github.com/andersfylling/hooksmp/internal/ids"
	"github.com/andersfylling/hooksmp/internal/logging"
	"github.com/andersfylling/hooksmp/internal/protocol"
	"github.com/andersfylling/hooksmp/internal/session"
	"github.com/andersfylling/hooksmp/internal/tickhistory"
	"github.com/andersfylling/hooksmp/internal/transport"
)

// spawnX/spawnY is the fixed spawn point new players appear at. A real level
// would pick this from spawn-point metadata; the current simulation has no
// level geometry beyond the flat ground plane in internal/game.
const spawnX, spawnY = 10, 10

func main() {
	cfg, err := config.LoadServer(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	listenAddr := flag.String("listen", cfg.ListenAddr, "UDP address to listen on")
	flag.Parse()
	cfg.ListenAddr = *listenAddr

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	var host transport.Host
	quicHost, err := transport.CreateServer(cfg.ListenAddr, cfg.TLSCertPath, cfg.TLSKeyPath)
	if err != nil {
		logger.Error("listen failed", "addr", cfg.ListenAddr, "err", err)
		os.Exit(1)
	}
	host = quicHost
	if cfg.LagMillis > 0 || cfg.LossPercent > 0 {
		host = transport.NewLagLossHost(host, transport.LagLossConfig{
			Lag:  time.Duration(cfg.LagMillis) * time.Millisecond,
			Loss: cfg.LossPercent / 100,
		})
	}
	defer host.Close()

	world := game.NewWorld()
	session.RegisterEvents(world.Core().Events)

	history := tickhistory.New(world.Core().Events, world.Classes())
	sessions := session.NewManager()
	runner := authority.NewRunner(world.Core(), world.Classes(), history, sessions, host)
	runner.OnInput(func(_ *ecs.World, player ids.PlayerID, input protocol.PlayerInput) {
		world.SetPlayerIntent(int(player), input.Intents)
	})

	srv := &server{
		cfg:     cfg,
		logger:  logger,
		host:    host,
		world:   world,
		sess:    sessions,
		runner:  runner,
		history: history,
	}
	srv.run()
}
