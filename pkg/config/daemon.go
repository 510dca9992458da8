package config

import (
	"fmt"
	"time"

	"github.com/fluxorio/counterlog/pkg/counter"
	"github.com/fluxorio/counterlog/pkg/oplog"
)

// EnvPrefix is the environment prefix the daemon reads overrides from.
const EnvPrefix = "COUNTERD"

// Daemon is the counterd configuration file.
type Daemon struct {
	Server   Server   `yaml:"server" json:"server"`
	Store    Store    `yaml:"store" json:"store"`
	OpLog    OpLog    `yaml:"oplog" json:"oplog"`
	Defaults Defaults `yaml:"defaults" json:"defaults"`
	Logging  Logging  `yaml:"logging" json:"logging"`
	Tracing  Tracing  `yaml:"tracing" json:"tracing"`

	// Counters are opened at startup so they recover before the first request.
	Counters []string `yaml:"counters" json:"counters"`
}

type Server struct {
	Addr            string        `yaml:"addr" json:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// RequestTimeout bounds the store and log work done for one request.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

type Store struct {
	Driver string `yaml:"driver" json:"driver"`
	// Dir holds one sqlite database per counter.
	Dir string `yaml:"dir" json:"dir"`
	// DSN is the shared database for postgres and pgx.
	DSN string `yaml:"dsn" json:"dsn"`
}

type OpLog struct {
	Dir        string `yaml:"dir" json:"dir"`
	Durability string `yaml:"durability" json:"durability"`
}

// Defaults apply to every counter the daemon opens.
type Defaults struct {
	Mode           string        `yaml:"mode" json:"mode"`
	FlushThreshold int           `yaml:"flush_threshold" json:"flush_threshold"`
	DrainDelay     time.Duration `yaml:"drain_delay" json:"drain_delay"`
}

type Logging struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

type Tracing struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	ServiceName string `yaml:"service_name" json:"service_name"`
}

// DefaultDaemon returns a config that runs out of ./data with sqlite.
func DefaultDaemon() Daemon {
	return Daemon{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RequestTimeout:  5 * time.Second,
		},
		Store: Store{Driver: "sqlite3", Dir: "data/store"},
		OpLog: OpLog{Dir: "data/oplog", Durability: "fsync"},
		Defaults: Defaults{
			Mode:           string(counter.ModeSync),
			FlushThreshold: 1000,
			DrainDelay:     counter.DefaultDrainDelay,
		},
		Logging: Logging{Level: "info", Format: "text"},
		Tracing: Tracing{ServiceName: "counterd"},
	}
}

// LoadDaemon starts from DefaultDaemon, overlays the file at path (if any),
// applies COUNTERD_* environment overrides and validates the result.
func LoadDaemon(path string) (Daemon, error) {
	cfg := DefaultDaemon()
	if err := LoadWithEnv(path, EnvPrefix, &cfg); err != nil {
		return Daemon{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Daemon{}, err
	}
	return cfg, nil
}

// Validate checks the daemon configuration.
func (d *Daemon) Validate() error {
	validators := []Validator{
		RequiredFields("Server.Addr", "OpLog.Dir", "Defaults.Mode"),
		OneOfValidator("Store.Driver", "sqlite3", "postgres", "pgx"),
		OneOfValidator("Defaults.Mode", string(counter.ModeSync), string(counter.ModeAsync)),
		OneOfValidator("Logging.Level", "debug", "info", "warn", "error"),
		OneOfValidator("Logging.Format", "text", "json"),
		RangeValidator("Defaults.FlushThreshold", 0, 1<<31-1),
		ValidatorFunc(func(interface{}) error {
			switch d.Store.Driver {
			case "", "sqlite3":
				if d.Store.Dir == "" {
					return fmt.Errorf("store.dir is required for sqlite3")
				}
			default:
				if d.Store.DSN == "" {
					return fmt.Errorf("store.dsn is required for %s", d.Store.Driver)
				}
			}
			if d.Server.RequestTimeout <= 0 {
				return fmt.Errorf("server.request_timeout must be positive")
			}
			if d.Defaults.DrainDelay < 0 {
				return fmt.Errorf("defaults.drain_delay must be non-negative")
			}
			if _, err := oplog.ParseDurability(d.OpLog.Durability); err != nil {
				return err
			}
			for _, name := range d.Counters {
				if !counter.ValidName(name) {
					return fmt.Errorf("invalid counter name %q", name)
				}
			}
			return nil
		}),
	}
	return Validate(d, validators...)
}
