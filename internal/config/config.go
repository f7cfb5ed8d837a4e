package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/corvidaelabs/oddbot/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Stream    Stream     `yaml:"stream" json:"stream"`
	Storage   Storage    `yaml:"storage" json:"storage"`
	HTTP      HTTP       `yaml:"http" json:"http"`
	Log       log.Config `yaml:"log" json:"log"`
	Consumer  Consumer   `yaml:"consumer" json:"consumer"`
	Replay    Replay     `yaml:"replay" json:"replay"`
	Forwarder Forwarder  `yaml:"forwarder" json:"forwarder"`
	Broadcast Broadcast  `yaml:"broadcast" json:"broadcast"`
}

// Stream names the event stream and the subject prefix squeaks go under.
type Stream struct {
	Name   string `yaml:"name" json:"name" env:"EVENT_STREAM_NAME"`
	Prefix string `yaml:"prefix" json:"prefix" env:"EVENT_STREAM_PREFIX" env-default:"oddlaws.events"`
}

// Storage locates the Pebble substrate.
type Storage struct {
	DataDir       string        `yaml:"data_dir" json:"data_dir" env:"ODDBOT_DATA_DIR"`
	Fsync         string        `yaml:"fsync" json:"fsync" env:"ODDBOT_FSYNC" env-default:"always"`
	FsyncInterval time.Duration `yaml:"fsync_interval" json:"fsync_interval" env:"ODDBOT_FSYNC_INTERVAL" env-default:"5ms"`
}

type HTTP struct {
	Addr string `yaml:"addr" json:"addr" env:"ODDBOT_HTTP_ADDR" env-default:":3000"`
}

// Consumer holds the pull consumer defaults.
type Consumer struct {
	MaxDeliver int           `yaml:"max_deliver" json:"max_deliver" env:"ODDBOT_CONSUMER_MAX_DELIVER" env-default:"3"`
	AckWait    time.Duration `yaml:"ack_wait" json:"ack_wait" env:"ODDBOT_CONSUMER_ACK_WAIT" env-default:"30s"`
}

// Replay tunes the per-connection history replay.
type Replay struct {
	BatchSize  int           `yaml:"batch_size" json:"batch_size" env:"ODDBOT_REPLAY_BATCH_SIZE" env-default:"100"`
	MaxAge     time.Duration `yaml:"max_age" json:"max_age" env:"ODDBOT_REPLAY_MAX_AGE" env-default:"24h"`
	BatchDelay time.Duration `yaml:"batch_delay" json:"batch_delay" env:"ODDBOT_REPLAY_BATCH_DELAY" env-default:"50ms"`
}

// Forwarder tunes the loop that moves squeaks from the log to the broadcaster.
type Forwarder struct {
	Consumer     string        `yaml:"consumer" json:"consumer" env:"ODDBOT_FORWARDER_CONSUMER" env-default:"oblivion_websocket_main_consumer"`
	BatchSize    int           `yaml:"batch_size" json:"batch_size" env:"ODDBOT_FORWARDER_BATCH_SIZE" env-default:"20"`
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval" env:"ODDBOT_FORWARDER_POLL_INTERVAL" env-default:"100ms"`
}

type Broadcast struct {
	Capacity int `yaml:"capacity" json:"capacity" env:"ODDBOT_BROADCAST_CAPACITY" env-default:"100"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Stream:  Stream{Prefix: "oddlaws.events"},
		Storage: Storage{Fsync: "always", FsyncInterval: 5 * time.Millisecond},
		HTTP:    HTTP{Addr: ":3000"},
		Log:     log.Config{Level: "info", Format: "text"},
		Consumer: Consumer{
			MaxDeliver: 3,
			AckWait:    30 * time.Second,
		},
		Replay: Replay{
			BatchSize:  100,
			MaxAge:     24 * time.Hour,
			BatchDelay: 50 * time.Millisecond,
		},
		Forwarder: Forwarder{
			Consumer:     "oblivion_websocket_main_consumer",
			BatchSize:    20,
			PollInterval: 100 * time.Millisecond,
		},
		Broadcast: Broadcast{Capacity: 100},
	}
}

// Load reads configuration from a YAML or JSON file (by extension) and
// overlays environment variables. If path is empty, defaults plus env are
// returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		if err := FromEnv(&cfg); err != nil {
			return Config{}, err
		}
		return cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv overlays ODDBOT_* and EVENT_STREAM_* environment variables onto cfg.
// Unset variables leave cfg untouched.
func FromEnv(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("config: env: %w", err)
	}
	return nil
}

// Validate reports settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Stream.Name == "" {
		errs = append(errs, errors.New("stream name is required (EVENT_STREAM_NAME)"))
	}
	if c.Forwarder.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("forwarder batch size must be positive, got %d", c.Forwarder.BatchSize))
	}
	if c.Replay.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("replay batch size must be positive, got %d", c.Replay.BatchSize))
	}
	if c.Broadcast.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("broadcast capacity must be positive, got %d", c.Broadcast.Capacity))
	}
	if c.Consumer.MaxDeliver <= 0 {
		errs = append(errs, fmt.Errorf("max deliver must be positive, got %d", c.Consumer.MaxDeliver))
	}
	return errors.Join(errs...)
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
