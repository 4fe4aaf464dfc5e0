// Package config assembles the few knobs the kernel's own components
// take (buffer pool size, LRU-k's k, the backing page file) into one
// value, built up via functional options the way DaemonDB's and
// gojodb's config packages do, rather than threading bare flags
// straight into constructors.
package config

import (
	"fmt"

	"github.com/corvidb/corvid/storage/disk"
)

const (
	defaultPoolSize  = 64
	defaultReplacerK = 2
	defaultDataFile  = "corvid.db"
)

// Config is the resolved, validated configuration for one kernel
// instance. PageSize is carried here so call sites can log/assert
// against it, but the on-disk page layout (table heap slots, B+tree
// nodes, the msgpack page codec) is fixed at disk.PageSize at compile
// time — New rejects any other value rather than silently ignoring it.
type Config struct {
	PoolSize  int
	ReplacerK int
	PageSize  int
	DataFile  string
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithPoolSize sets the number of frames in the buffer pool.
func WithPoolSize(n int) Option { return func(c *Config) { c.PoolSize = n } }

// WithReplacerK sets k for the LRU-k replacer's backward k-distance.
func WithReplacerK(k int) Option { return func(c *Config) { c.ReplacerK = k } }

// WithPageSize sets the page size Config reports. New rejects any
// value other than disk.PageSize; the option exists so a caller can
// assert the page size it expects rather than assume it.
func WithPageSize(n int) Option { return func(c *Config) { c.PageSize = n } }

// WithDataFile sets the path to the backing page file.
func WithDataFile(path string) Option { return func(c *Config) { c.DataFile = path } }

// New builds a Config from defaults plus opts, and validates it.
func New(opts ...Option) (Config, error) {
	cfg := Config{
		PoolSize:  defaultPoolSize,
		ReplacerK: defaultReplacerK,
		PageSize:  disk.PageSize,
		DataFile:  defaultDataFile,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.PoolSize <= 0 {
		return Config{}, fmt.Errorf("config: pool size must be positive, got %d", cfg.PoolSize)
	}
	if cfg.ReplacerK <= 0 {
		return Config{}, fmt.Errorf("config: replacer k must be positive, got %d", cfg.ReplacerK)
	}
	if cfg.PageSize != disk.PageSize {
		return Config{}, fmt.Errorf("config: page size %d is not supported; the on-disk layout is fixed at %d bytes", cfg.PageSize, disk.PageSize)
	}
	if cfg.DataFile == "" {
		return Config{}, fmt.Errorf("config: data file path must not be empty")
	}

	return cfg, nil
}
