// Package config loads server and client settings from the environment.
// The binaries apply command-line overrides on top and then call Validate.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/cyberinferno/sleuthnet/frame"
	"github.com/cyberinferno/sleuthnet/logger"
)

// Server holds the sleuthd settings.
type Server struct {
	ListenAddr    string        `env:"SLEUTH_LISTEN_ADDR"     envDefault:":7777"`
	BufferSize    int           `env:"SLEUTH_BUFFER_SIZE"     envDefault:"4096"`
	FrameMultiple int           `env:"SLEUTH_FRAME_MULTIPLE"  envDefault:"16"`
	PollTimeout   time.Duration `env:"SLEUTH_POLL_TIMEOUT"    envDefault:"1s"`
	MaxQueue      int           `env:"SLEUTH_MAX_QUEUE"       envDefault:"1024"`
	LoadTimeout   time.Duration `env:"SLEUTH_LOAD_TIMEOUT"    envDefault:"5s"`

	// DiscoveryAddr is the UDP broadcast target; empty disables announcements.
	DiscoveryAddr     string        `env:"SLEUTH_DISCOVERY_ADDR"     envDefault:"255.255.255.255:7778"`
	DiscoveryInterval time.Duration `env:"SLEUTH_DISCOVERY_INTERVAL" envDefault:"2s"`

	// MetricsAddr serves /metrics; empty disables it.
	MetricsAddr string `env:"SLEUTH_METRICS_ADDR" envDefault:""`

	CatalogTTL time.Duration `env:"SLEUTH_CATALOG_TTL" envDefault:"1m"`
	// RedisAddr selects the shared redis catalog cache instead of the in-process one.
	RedisAddr string `env:"SLEUTH_REDIS_ADDR" envDefault:""`

	LogLevel string `env:"SLEUTH_LOG_LEVEL" envDefault:"info"`
}

// Client holds the sleuth client settings.
type Client struct {
	ServerAddr     string        `env:"SLEUTH_SERVER_ADDR"     envDefault:"127.0.0.1:7777"`
	DialTimeout    time.Duration `env:"SLEUTH_DIAL_TIMEOUT"    envDefault:"5s"`
	WriteTimeout   time.Duration `env:"SLEUTH_WRITE_TIMEOUT"   envDefault:"5s"`
	ReconnectDelay time.Duration `env:"SLEUTH_RECONNECT_DELAY" envDefault:"3s"`
	MaxAttempts    int           `env:"SLEUTH_MAX_ATTEMPTS"    envDefault:"5"`
	RequestTimeout time.Duration `env:"SLEUTH_REQUEST_TIMEOUT" envDefault:"10s"`
	BufferSize     int           `env:"SLEUTH_BUFFER_SIZE"     envDefault:"4096"`
	FrameMultiple  int           `env:"SLEUTH_FRAME_MULTIPLE"  envDefault:"16"`

	// DiscoveryAddr is where LAN announcements are received; empty disables browsing.
	DiscoveryAddr string `env:"SLEUTH_DISCOVERY_LISTEN" envDefault:":7778"`

	LogLevel string `env:"SLEUTH_LOG_LEVEL" envDefault:"warn"`
}

// LoadServer parses the server settings from the environment.
func LoadServer() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// LoadClient parses the client settings from the environment.
func LoadClient() (Client, error) {
	var cfg Client
	if err := env.Parse(&cfg); err != nil {
		return Client{}, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// MaxPayload returns the frame payload ceiling.
func (c Server) MaxPayload() int {
	return frame.MaxPayload(c.BufferSize, c.FrameMultiple)
}

// Validate checks the server settings.
func (c Server) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	errs = append(errs, validateFraming(c.BufferSize, c.FrameMultiple)...)
	if c.PollTimeout <= 0 {
		errs = append(errs, fmt.Errorf("poll timeout must be positive, got %s", c.PollTimeout))
	}
	if c.MaxQueue < 0 {
		errs = append(errs, fmt.Errorf("max queue must not be negative, got %d", c.MaxQueue))
	}
	if c.LoadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("load timeout must be positive, got %s", c.LoadTimeout))
	}
	if c.DiscoveryAddr != "" && c.DiscoveryInterval <= 0 {
		errs = append(errs, fmt.Errorf("discovery interval must be positive, got %s", c.DiscoveryInterval))
	}
	if c.CatalogTTL <= 0 {
		errs = append(errs, fmt.Errorf("catalog ttl must be positive, got %s", c.CatalogTTL))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// MaxPayload returns the frame payload ceiling.
func (c Client) MaxPayload() int {
	return frame.MaxPayload(c.BufferSize, c.FrameMultiple)
}

// Validate checks the client settings.
func (c Client) Validate() error {
	var errs []error
	if c.ServerAddr == "" {
		errs = append(errs, errors.New("server address must not be empty"))
	}
	errs = append(errs, validateFraming(c.BufferSize, c.FrameMultiple)...)
	if c.DialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dial timeout must be positive, got %s", c.DialTimeout))
	}
	if c.ReconnectDelay < 0 {
		errs = append(errs, fmt.Errorf("reconnect delay must not be negative, got %s", c.ReconnectDelay))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max attempts must not be negative, got %d", c.MaxAttempts))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request timeout must not be negative, got %s", c.RequestTimeout))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validateFraming(bufferSize, multiple int) []error {
	var errs []error
	if bufferSize <= 0 {
		errs = append(errs, fmt.Errorf("buffer size must be positive, got %d", bufferSize))
	}
	if multiple <= 0 {
		errs = append(errs, fmt.Errorf("frame multiple must be positive, got %d", multiple))
	}

	return errs
}
