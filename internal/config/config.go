// Package config loads runtime tunables for the server and client binaries
// from environment variables, applying sane defaults and collecting every
// invalid override into one descriptive error instead of failing on the
// first bad value.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultListenAddr is the UDP address the server's QUIC listener binds.
	DefaultListenAddr = ":7777"
	// DefaultTicksPerSecond is the authoritative simulation rate.
	DefaultTicksPerSecond = 30
	// DefaultTicksPerSnapshot is sent to clients in GameInfo, where the pacing
	// scheduler uses it to size its expected interval between received ticks.
	// The server still sends every tick as a delta against the peer's last
	// acknowledged tick; no full snapshot is ever forced.
	DefaultTicksPerSnapshot = 1
	// DefaultMaxPlayers is the default for ServerConfig.MaxPlayers. The value
	// is loaded and validated only; the server does not cap how many peers
	// join.
	DefaultMaxPlayers = 16
	// DefaultInputRateLimit is the max accepted input messages per second
	// from a single player.
	DefaultInputRateLimit = 2 * DefaultTicksPerSecond
	// DefaultPingInterval is the default for ClientConfig.PingInterval. The
	// value is loaded and validated only; pings are paced by
	// timesync.SendPingHz (one every two seconds), not by this setting.
	DefaultPingInterval = 500 * time.Millisecond
	// DefaultHistoryTicks is the default for ServerConfig.HistoryTicks. The
	// value is loaded and validated only; the server prunes tick history at
	// the oldest tick every in-game peer has acknowledged, with no cap on the
	// number of retained ticks.
	DefaultHistoryTicks = 300

	// DefaultLogLevel controls verbosity for structured logs.
	DefaultLogLevel = "info"
	// DefaultLogFormat selects the slog handler ("json" or "text").
	DefaultLogFormat = "json"
)

// ServerConfig captures every tunable for the dedicated game server.
type ServerConfig struct {
	ListenAddr       string
	TLSCertPath      string
	TLSKeyPath       string
	TicksPerSecond   int
	TicksPerSnapshot int
	MaxPlayers       int
	InputRateLimit   float64
	HistoryTicks     int
	LagMillis        int
	LossPercent      float64
	Logging          LoggingConfig
}

// ClientConfig captures every tunable for the connecting client.
type ClientConfig struct {
	ServerAddr     string
	PlayerName     string
	InsecureSkipTLSVerify bool
	PingInterval   time.Duration
	Logging        LoggingConfig
}

// LoggingConfig captures structured logging options shared by both binaries.
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadServer reads server configuration from HOOKSMP_* environment
// variables, applying defaults and returning every validation problem found
// rather than stopping at the first one.
func LoadServer(getenv func(string) string) (*ServerConfig, error) {
	cfg := &ServerConfig{
		ListenAddr:       getString(getenv, "HOOKSMP_LISTEN_ADDR", DefaultListenAddr),
		TLSCertPath:      strings.TrimSpace(getenv("HOOKSMP_TLS_CERT")),
		TLSKeyPath:       strings.TrimSpace(getenv("HOOKSMP_TLS_KEY")),
		TicksPerSecond:   DefaultTicksPerSecond,
		TicksPerSnapshot: DefaultTicksPerSnapshot,
		MaxPlayers:       DefaultMaxPlayers,
		InputRateLimit:   DefaultInputRateLimit,
		HistoryTicks:     DefaultHistoryTicks,
		Logging: LoggingConfig{
			Level:  getString(getenv, "HOOKSMP_LOG_LEVEL", DefaultLogLevel),
			Format: getString(getenv, "HOOKSMP_LOG_FORMAT", DefaultLogFormat),
		},
	}

	var problems []string
	cfg.TicksPerSecond = parseIntOverride(getenv, "HOOKSMP_TICKS_PER_SECOND", cfg.TicksPerSecond, 1, &problems)
	cfg.TicksPerSnapshot = parseIntOverride(getenv, "HOOKSMP_TICKS_PER_SNAPSHOT", cfg.TicksPerSnapshot, 1, &problems)
	cfg.MaxPlayers = parseIntOverride(getenv, "HOOKSMP_MAX_PLAYERS", cfg.MaxPlayers, 1, &problems)
	cfg.HistoryTicks = parseIntOverride(getenv, "HOOKSMP_HISTORY_TICKS", cfg.HistoryTicks, 1, &problems)
	cfg.LagMillis = parseIntOverride(getenv, "HOOKSMP_SIM_LAG_MS", 0, 0, &problems)

	if raw := strings.TrimSpace(getenv("HOOKSMP_INPUT_RATE_LIMIT")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			problems = append(problems, fmt.Sprintf("HOOKSMP_INPUT_RATE_LIMIT must be a positive number, got %q", raw))
		} else {
			cfg.InputRateLimit = v
		}
	}

	if raw := strings.TrimSpace(getenv("HOOKSMP_SIM_LOSS_PERCENT")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 100 {
			problems = append(problems, fmt.Sprintf("HOOKSMP_SIM_LOSS_PERCENT must be between 0 and 100, got %q", raw))
		} else {
			cfg.LossPercent = v
		}
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "HOOKSMP_TLS_CERT and HOOKSMP_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

// LoadClient reads client configuration from HOOKSMP_* environment
// variables.
func LoadClient(getenv func(string) string) (*ClientConfig, error) {
	cfg := &ClientConfig{
		ServerAddr:            getString(getenv, "HOOKSMP_SERVER_ADDR", "127.0.0.1:7777"),
		PlayerName:            getString(getenv, "HOOKSMP_PLAYER_NAME", "player"),
		InsecureSkipTLSVerify: false,
		PingInterval:          DefaultPingInterval,
		Logging: LoggingConfig{
			Level:  getString(getenv, "HOOKSMP_LOG_LEVEL", DefaultLogLevel),
			Format: getString(getenv, "HOOKSMP_LOG_FORMAT", DefaultLogFormat),
		},
	}

	var problems []string

	if raw := strings.TrimSpace(getenv("HOOKSMP_INSECURE_SKIP_TLS_VERIFY")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("HOOKSMP_INSECURE_SKIP_TLS_VERIFY must be a boolean, got %q", raw))
		} else {
			cfg.InsecureSkipTLSVerify = v
		}
	}

	if raw := strings.TrimSpace(getenv("HOOKSMP_PING_INTERVAL")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			problems = append(problems, fmt.Sprintf("HOOKSMP_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = d
		}
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return cfg, nil
}

func getString(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseIntOverride(getenv func(string) string, key string, fallback, min int, problems *[]string) int {
	raw := strings.TrimSpace(getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		*problems = append(*problems, fmt.Sprintf("%s must be an integer >= %d, got %q", key, min, raw))
		return fallback
	}
	return v
}
