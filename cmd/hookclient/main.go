// Command hookclient connects to a hookserver instance, runs the COMM
// handshake, then drives the predicting client tick loop against the GAME
// and TIME channels. It has no rendering or input-device layer: input is a
// fixed, empty intent every tick, enough to exercise the full replication
// and prediction pipeline headlessly.
package main

import (
	"flag"
	"log/slog"
	"os"

	"github.com/andersfylling/hooksmp/internal/config"
	"github.com/andersfylling/hooksmp/internal/logging"
	"github.com/andersfylling/hooksmp/internal/transport"
)

func main() {
	cfg, err := config.LoadClient(os.Getenv)
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	serverAddr := flag.String("server", cfg.ServerAddr, "server address to connect to")
	name := flag.String("name", cfg.PlayerName, "player name to present during handshake")
	flag.Parse()
	cfg.ServerAddr = *serverAddr
	cfg.PlayerName = *name

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	host := transport.CreateClient()
	defer host.Close()

	if err := host.Connect(cfg.ServerAddr, cfg.InsecureSkipTLSVerify); err != nil {
		logger.Error("connect failed", "addr", cfg.ServerAddr, "err", err)
		os.Exit(1)
	}

	cl := newClient(cfg, logger, host)
	cl.run()
}
