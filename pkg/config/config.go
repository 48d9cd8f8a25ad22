// Config is loaded from three layers, each overriding the previous one: an
// optional YAML file, environment variables, and command-line flags (applied
// by the caller on the returned value).
//
// The ping_timeout and ping_count_max keys are accepted for older deployments
// and translated into ping_interval and ping_max_retries with a warning.

package config

import (
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"rtc-transport/pkg/log"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	DefaultHost                = "127.0.0.1"
	DefaultPort                = 2567
	DefaultSTUN                = "stun.l.google.com:19302"
	DefaultPingInterval        = 1500 * time.Millisecond
	DefaultPingMaxRetries      = 2
	DefaultSeatReservationTime = 15 * time.Second
	DefaultChannelLabel        = "colyseus"
	DefaultLogLevel            = "info"
)

type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	STUN            []string `yaml:"stun"`
	IncludeLoopback bool     `yaml:"include_loopback"`
	EmbedCandidates bool     `yaml:"embed_candidates"`
	ChannelLabel    string   `yaml:"channel_label"`

	PingInterval        time.Duration `yaml:"ping_interval"`
	PingMaxRetries      int           `yaml:"ping_max_retries"`
	SeatReservationTime time.Duration `yaml:"seat_reservation_time"`

	LogLevel string `yaml:"log_level"`

	// Deprecated aliases.
	PingTimeout  *time.Duration `yaml:"ping_timeout"`
	PingCountMax *int           `yaml:"ping_count_max"`
}

func Default() *Config {
	return &Config{
		Host:                DefaultHost,
		Port:                DefaultPort,
		STUN:                []string{DefaultSTUN},
		ChannelLabel:        DefaultChannelLabel,
		PingInterval:        DefaultPingInterval,
		PingMaxRetries:      DefaultPingMaxRetries,
		SeatReservationTime: DefaultSeatReservationTime,
		LogLevel:            DefaultLogLevel,
	}
}

// Load returns the defaults overridden by the file at path (skipped when path
// is empty) and by the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if len(path) != 0 {
		payload, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}

		if err := yaml.Unmarshal(payload, cfg); err != nil {
			return nil, errors.Wrap(err, path)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, errors.Wrap(err, "environment")
	}

	cfg.normalize()

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("HOST"); ok && len(v) != 0 {
		c.Host = v
	}

	if v, ok := lookup("PORT"); ok && len(v) != 0 {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "PORT")
		}
		c.Port = port
	}

	if v, ok := lookup("STUN_SERVERS"); ok {
		c.STUN = splitList(v)
	}

	if v, ok := lookup("LOG_LEVEL"); ok && len(v) != 0 {
		c.LogLevel = v
	}

	if v, ok := lookup("PING_INTERVAL"); ok && len(v) != 0 {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "PING_INTERVAL")
		}
		c.PingInterval = d
	}

	if v, ok := lookup("PING_MAX_RETRIES"); ok && len(v) != 0 {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "PING_MAX_RETRIES")
		}
		c.PingMaxRetries = n
	}

	return nil
}

func (c *Config) normalize() {
	if c.PingTimeout != nil {
		log.Warn(`"ping_timeout" is deprecated. Use "ping_interval" instead.`)
		c.PingInterval = *c.PingTimeout
		c.PingTimeout = nil
	}

	if c.PingCountMax != nil {
		log.Warn(`"ping_count_max" is deprecated. Use "ping_max_retries" instead.`)
		c.PingMaxRetries = *c.PingCountMax
		c.PingCountMax = nil
	}

	if len(c.ChannelLabel) == 0 {
		c.ChannelLabel = DefaultChannelLabel
	}
}

func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}

	if c.PingInterval < 0 {
		return errors.New("ping interval must not be negative")
	}

	if c.PingMaxRetries < 0 {
		return errors.New("ping max retries must not be negative")
	}

	if c.SeatReservationTime <= 0 {
		return errors.New("seat reservation time must be positive")
	}

	return nil
}

// Address is the host:port the HTTP server listens on.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// HeartbeatEnabled reports whether the liveness sweep should run at all.
func (c *Config) HeartbeatEnabled() bool {
	return c.PingInterval > 0 && c.PingMaxRetries > 0
}

func splitList(v string) []string {
	var out []string

	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); len(item) != 0 {
			out = append(out, item)
		}
	}

	return out
}
