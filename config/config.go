package config

import (
	"bytes"
	"io"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultPort = "1935"
const DefaultHTTPAddr = ":8080"

// Bytes read from a socket per call. Same for RTMP sessions and HTTP-FLV pulls.
const ReadBufferSize = 16384

const BuffioSize = 1024 * 64

const DefaultClientWindowSize uint32 = 2500000
const DefaultChunkSize uint32 = 4096
const MaxChunkSize uint32 = 0x7FFFFFFF

const FlashMediaServerVersion string = "FMS/3,5,7,7009"

const Capabilities int = 31

const Mode int = 1

const DefaultStreamID uint32 = 1

const DefaultReconnectDelay = 5 * time.Second

// Number of FLV tags an HTTP or WebSocket subscriber may have queued before it
// is considered too slow and dropped.
const DefaultSubscriberQueue = 1024

// Messages an RTMP session may have waiting for its writer before it is closed.
const MaxSendQueueLength = 4096

type Config struct {
	RTMP RTMPConfig `yaml:"rtmp"`
	HTTP HTTPConfig `yaml:"http"`
	Pull PullConfig `yaml:"pull"`
	Log  LogConfig  `yaml:"log"`
}

type RTMPConfig struct {
	Addr          string `yaml:"addr"`
	ChunkSize     uint32 `yaml:"chunk_size"`
	WindowAckSize uint32 `yaml:"window_ack_size"`
}

type HTTPConfig struct {
	// Empty disables the HTTP-FLV listener.
	Addr            string `yaml:"addr"`
	WebSocket       bool   `yaml:"websocket"`
	SubscriberQueue int    `yaml:"subscriber_queue"`
}

type PullConfig struct {
	// URLTemplate is an upstream HTTP-FLV URL with {app} and {name}
	// placeholders. Empty disables pulling.
	URLTemplate    string        `yaml:"url_template"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads a YAML file, rejecting unknown fields, and fills in defaults.
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.RTMP.Addr == "" {
		c.RTMP.Addr = ":" + DefaultPort
	}
	if c.RTMP.ChunkSize == 0 {
		c.RTMP.ChunkSize = DefaultChunkSize
	}
	if c.RTMP.WindowAckSize == 0 {
		c.RTMP.WindowAckSize = DefaultClientWindowSize
	}
	if c.HTTP.SubscriberQueue == 0 {
		c.HTTP.SubscriberQueue = DefaultSubscriberQueue
	}
	if c.Pull.ReconnectDelay == 0 {
		c.Pull.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.RTMP.ChunkSize < 1 || c.RTMP.ChunkSize > MaxChunkSize {
		return errors.Errorf("rtmp.chunk_size must be within [1, %d], got %d", MaxChunkSize, c.RTMP.ChunkSize)
	}
	if c.HTTP.SubscriberQueue < 0 {
		return errors.Errorf("http.subscriber_queue must be positive, got %d", c.HTTP.SubscriberQueue)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	return nil
}
