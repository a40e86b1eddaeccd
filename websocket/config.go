package websocket

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config bounds the resource and liveness behavior of a Session. The zero
// value is usable: every field but AutoPingInterval falls back to a sane
// default in Normalize.
type Config struct {
	// MaxFrameSize caps the advertised payload length of a single frame,
	// in bytes. Zero falls back to a 16 KiB default.
	MaxFrameSize int64 `yaml:"max_frame_size"`

	// MaxMessageSize caps the reassembled size of one logical message, in
	// bytes, as received on the wire, before any extension such as
	// permessage-deflate expands it (DeflateConfig.MaxDecompressedSize
	// bounds the expanded size). Zero means unbounded.
	MaxMessageSize int64 `yaml:"max_message_size"`

	// ReadBufferSize sizes the bufio.Reader wrapping the transport.
	ReadBufferSize int `yaml:"read_buffer_size"`

	// AutoPingInterval is the period between automatic pings and the
	// window a peer has to answer one before the session closes with
	// goingAway. Zero disables the auto-ping task.
	AutoPingInterval time.Duration `yaml:"auto_ping_interval"`

	// CloseTimeout bounds how long Session.Close waits for the event loop
	// to observe the peer's close reply before forcing the transport shut.
	CloseTimeout time.Duration `yaml:"close_timeout"`

	// ValidateUTF8 enables RFC 6455 section 8.1 UTF-8 validation of text
	// message payloads. Disabled by default, leaving the cost opt-in;
	// enable it where strict RFC 6455 compliance matters.
	ValidateUTF8 bool `yaml:"validate_utf8"`
}

const (
	defaultReadBufferSize = 4096
	defaultMaxFrameSize   = 16 * 1024
	defaultCloseTimeout   = 15 * time.Second
)

// Normalize returns a copy of cfg with every zero-valued field replaced by
// its default, except AutoPingInterval: zero there means auto-ping is
// disabled, and Normalize leaves that choice alone.
func (cfg Config) Normalize() Config {
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = defaultMaxFrameSize
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = defaultCloseTimeout
	}
	return cfg
}

// ParseConfig decodes a Config from YAML.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfigFile reads and parses a Config from a YAML file on disk.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return ParseConfig(data)
}
