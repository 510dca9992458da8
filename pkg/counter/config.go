package counter

import (
	"regexp"
	"strings"
	"time"

	"github.com/fluxorio/counterlog/pkg/db"
	"github.com/fluxorio/counterlog/pkg/oplog"
)

// Mode is the durability mode of a counter. It never changes after New.
type Mode string

const (
	// ModeSync blocks every operation until its log append is confirmed.
	ModeSync Mode = "sync"
	// ModeAsync buffers log appends and drains them on a debounce timer.
	ModeAsync Mode = "async"
)

// DefaultDrainDelay is the async debounce window.
const DefaultDrainDelay = 25 * time.Millisecond

// DefaultName is the store key used when Config.Name is empty.
const DefaultName = "default"

var validName = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidName reports whether name can be used as a counter identity.
func ValidName(name string) bool {
	return validName.MatchString(name)
}

// Config configures a Counter.
type Config struct {
	// Name is the row key in the durable store.
	Name string `yaml:"name" json:"name"`

	// StoreLocation is the durable store DSN (a file path for sqlite3).
	StoreLocation string `yaml:"store_location" json:"store_location"`

	// StoreDriver selects the database/sql driver; empty means sqlite3.
	StoreDriver string `yaml:"store_driver" json:"store_driver"`

	// LogLocation is the operation log file path.
	LogLocation string `yaml:"log_location" json:"log_location"`

	// FlushThreshold triggers a flush once pending reaches it. 0 disables.
	FlushThreshold int `yaml:"flush_threshold" json:"flush_threshold"`

	// Mode is "sync" or "async".
	Mode Mode `yaml:"mode" json:"mode"`

	// DrainDelay is the async debounce window (default DefaultDrainDelay).
	DrainDelay time.Duration `yaml:"drain_delay" json:"drain_delay"`

	// LogDurability controls fsync on append (default fsync).
	LogDurability oplog.Durability `yaml:"-" json:"-"`
}

// validate normalizes defaults and rejects bad configuration.
func (cfg *Config) validate() error {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if !ValidName(cfg.Name) {
		return configError("invalid counter name %q", cfg.Name)
	}
	switch cfg.Mode {
	case ModeSync, ModeAsync:
	default:
		return configError("unknown mode %q (want %q or %q)", cfg.Mode, ModeSync, ModeAsync)
	}
	if cfg.FlushThreshold < 0 {
		return configError("flush threshold must be non-negative, got %d", cfg.FlushThreshold)
	}
	if strings.TrimSpace(cfg.StoreLocation) == "" {
		return configError("store location is required")
	}
	if strings.TrimSpace(cfg.LogLocation) == "" {
		return configError("log location is required")
	}
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = db.DriverSQLite
	}
	switch cfg.StoreDriver {
	case db.DriverSQLite, db.DriverPostgres, db.DriverPgx:
	default:
		return configError("unsupported store driver %q", cfg.StoreDriver)
	}
	if cfg.DrainDelay < 0 {
		return configError("drain delay must be non-negative, got %s", cfg.DrainDelay)
	}
	if cfg.DrainDelay == 0 {
		cfg.DrainDelay = DefaultDrainDelay
	}
	switch cfg.LogDurability {
	case oplog.DurabilityFsync, oplog.DurabilityOS:
	default:
		return configError("unknown log durability %d", cfg.LogDurability)
	}
	return nil
}
