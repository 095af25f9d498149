package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server   ServerConfig   `toml:"server" envPrefix:"SERVER_"`
	Script   ScriptConfig   `toml:"script" envPrefix:"SCRIPT_"`
	Network  NetworkConfig  `toml:"network" envPrefix:"NETWORK_"`
	Web      WebConfig      `toml:"web" envPrefix:"WEB_"`
	Console  ConsoleConfig  `toml:"console" envPrefix:"CONSOLE_"`
	Database DatabaseConfig `toml:"database" envPrefix:"DATABASE_"`
	Logging  LoggingConfig  `toml:"logging" envPrefix:"LOGGING_"`
}

type ServerConfig struct {
	Name         string `toml:"name" env:"NAME"`
	ExamplesFile string `toml:"examples_file" env:"EXAMPLES_FILE"` // YAML example-script library
	StartTime    int64  // set at boot, not from config
}

type ScriptConfig struct {
	Dialect        string        `toml:"dialect" env:"DIALECT"` // "python", "lua" or "js"
	Timeout        time.Duration `toml:"timeout" env:"TIMEOUT"`
	MaxSteps       uint64        `toml:"max_steps" env:"MAX_STEPS"` // python only; 0 = unlimited
	QueueSize      int           `toml:"queue_size" env:"QUEUE_SIZE"`
	MaxRunsPerTick int           `toml:"max_runs_per_tick" env:"MAX_RUNS_PER_TICK"`
}

type NetworkConfig struct {
	BindAddress       string        `toml:"bind_address" env:"BIND_ADDRESS"` // console protocol; empty disables
	TickRate          time.Duration `toml:"tick_rate" env:"TICK_RATE"`
	InQueueSize       int           `toml:"in_queue_size" env:"IN_QUEUE_SIZE"`
	OutQueueSize      int           `toml:"out_queue_size" env:"OUT_QUEUE_SIZE"`
	MaxPacketsPerTick int           `toml:"max_packets_per_tick" env:"MAX_PACKETS_PER_TICK"`
	PacketsPerSecond  int           `toml:"packets_per_second" env:"PACKETS_PER_SECOND"` // 0 = unlimited
	WriteTimeout      time.Duration `toml:"write_timeout" env:"WRITE_TIMEOUT"`
}

type WebConfig struct {
	BindAddress  string        `toml:"bind_address" env:"BIND_ADDRESS"` // empty disables
	ReadTimeout  time.Duration `toml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `toml:"write_timeout" env:"WRITE_TIMEOUT"`
	RunTimeout   time.Duration `toml:"run_timeout" env:"RUN_TIMEOUT"` // how long a request waits for its queued run
	ClientBuffer int           `toml:"client_buffer" env:"CLIENT_BUFFER"`
	AllowOrigins []string      `toml:"allow_origins" env:"ALLOW_ORIGINS"` // websocket origins; empty allows any
}

type ConsoleConfig struct {
	PasswordHash string `toml:"password_hash" env:"PASSWORD_HASH"` // bcrypt; empty = no login required
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn" env:"DSN"` // empty disables the run journal
	MaxOpenConns    int           `toml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `toml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	FlushInterval   int           `toml:"flush_interval" env:"FLUSH_INTERVAL"` // ticks between journal flushes
}

type LoggingConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"` // "json" or "console"
}

// Load reads the TOML file at path over the defaults, then applies PYQUEST_*
// environment overrides. A missing file is not an error when allowMissing is set.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && allowMissing:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "PYQUEST_"}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Script.Dialect {
	case "python", "lua", "js":
	default:
		return fmt.Errorf("script.dialect %q: want python, lua or js", c.Script.Dialect)
	}
	if c.Network.TickRate <= 0 {
		return fmt.Errorf("network.tick_rate must be positive")
	}
	if c.Script.QueueSize <= 0 || c.Script.MaxRunsPerTick <= 0 {
		return fmt.Errorf("script.queue_size and script.max_runs_per_tick must be positive")
	}
	return nil
}

// Defaults returns the built-in configuration.
func Defaults() *Config { return defaults() }

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:         "PyQuest",
			ExamplesFile: "data/yaml/examples.yaml",
		},
		Script: ScriptConfig{
			Dialect:        "python",
			Timeout:        5 * time.Second,
			MaxSteps:       10_000_000,
			QueueSize:      64,
			MaxRunsPerTick: 4,
		},
		Network: NetworkConfig{
			BindAddress:       "127.0.0.1:7001",
			TickRate:          50 * time.Millisecond,
			InQueueSize:       128,
			OutQueueSize:      256,
			MaxPacketsPerTick: 32,
			PacketsPerSecond:  60,
			WriteTimeout:      10 * time.Second,
		},
		Web: WebConfig{
			BindAddress:  "127.0.0.1:8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			RunTimeout:   10 * time.Second,
			ClientBuffer: 256,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			FlushInterval:   20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
