// Package config holds the build-time configuration of a core. A Config is
// resolved once, before the core is built, and never changes afterwards.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sarchlab/coresim/timing/addrspace"
	"github.com/sarchlab/coresim/timing/latency"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// CacheConfig sizes a cache.
type CacheConfig struct {
	// Size in bytes.
	Size int `json:"size"`
	// Associativity (number of ways).
	Associativity int `json:"associativity"`
	// BlockSize in bytes (cache line size).
	BlockSize int `json:"block_size"`
	// HitLatency in cycles.
	HitLatency uint64 `json:"hit_latency"`
}

// TLBConfig sizes a translation unit.
type TLBConfig struct {
	// Entries is the total number of 4 KiB translations held.
	Entries int `json:"entries"`
	// Ways is the associativity.
	Ways int `json:"ways"`
}

// Config is the configuration surface of a core.
type Config struct {
	// XLEN is the register width, 32 or 64.
	XLEN int `json:"xlen"`

	HasICache bool `json:"has_icache"`
	HasDCache bool `json:"has_dcache"`
	HasITLB   bool `json:"has_itlb"`
	HasDTLB   bool `json:"has_dtlb"`

	// IssueWidth is the number of records moved per cycle between the
	// frontend stages and into the backend, 1 or 2.
	IssueWidth int `json:"issue_width"`

	// EnableOutOfOrder selects the out-of-order backend.
	EnableOutOfOrder bool `json:"enable_out_of_order"`

	// MMIOBase and MMIOSize describe the external device range. The
	// internal device range is fixed.
	MMIOBase uint64 `json:"mmio_base"`
	MMIOSize uint64 `json:"mmio_size"`

	// ResetVector is the first fetch address.
	ResetVector uint64 `json:"reset_vector"`

	ICache CacheConfig `json:"icache"`
	DCache CacheConfig `json:"dcache"`
	ITLB   TLBConfig   `json:"itlb"`
	DTLB   TLBConfig   `json:"dtlb"`

	// Buffer depths.
	FetchQueueDepth   int `json:"fetch_queue_depth"`
	IBufferDepth      int `json:"ibuffer_depth"`
	DecodeQueueDepth  int `json:"decode_queue_depth"`
	BackendQueueDepth int `json:"backend_queue_depth"`
	LinkDepth         int `json:"link_depth"`

	// Out-of-order backend resources.
	ROBSize          int `json:"rob_size"`
	MaxInflightLoads int `json:"max_inflight_loads"`

	// DataBusIDBits is the transaction ID width of the auto-ID data
	// multiplexer.
	DataBusIDBits int `json:"data_bus_id_bits"`

	Timing *latency.TimingConfig `json:"timing"`
}

// Default returns the default configuration: RV64, both caches, no
// translation, single issue, in-order backend.
func Default() *Config {
	return &Config{
		XLEN:        64,
		HasICache:   true,
		HasDCache:   true,
		IssueWidth:  1,
		MMIOBase:    0x4000_0000,
		MMIOSize:    0x4000_0000,
		ResetVector: 0x8000_0000,
		ICache: CacheConfig{
			Size:          16 * 1024,
			Associativity: 4,
			BlockSize:     64,
			HitLatency:    1,
		},
		DCache: CacheConfig{
			Size:          16 * 1024,
			Associativity: 4,
			BlockSize:     64,
			HitLatency:    2,
		},
		ITLB:              TLBConfig{Entries: 32, Ways: 4},
		DTLB:              TLBConfig{Entries: 32, Ways: 4},
		FetchQueueDepth:   4,
		IBufferDepth:      8,
		DecodeQueueDepth:  4,
		BackendQueueDepth: 4,
		LinkDepth:         2,
		ROBSize:           32,
		MaxInflightLoads:  4,
		DataBusIDBits:     3,
		Timing:            latency.DefaultTimingConfig(),
	}
}

// Load reads a JSON configuration. Fields missing from the file keep their
// defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return c, nil
}

// Save writes the configuration as indented JSON.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Marshal returns the configuration as indented JSON.
func (c *Config) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config: %w", err)
	}

	return data, nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Timing != nil {
		clone.Timing = c.Timing.Clone()
	}

	return &clone
}

// VMEnabled returns true if virtual memory is on, which needs both
// translation units.
func (c *Config) VMEnabled() bool {
	return c.HasITLB && c.HasDTLB
}

// MMIORanges returns the internal device range followed by the external
// range.
func (c *Config) MMIORanges() []addrspace.Range {
	return []addrspace.Range{
		addrspace.InternalDevices,
		{Base: c.MMIOBase, Size: c.MMIOSize},
	}
}

// Validate checks the configuration. Every error wraps ErrInvalid.
func (c *Config) Validate() error {
	checks := []struct {
		bad bool
		msg string
	}{
		{c.XLEN != 32 && c.XLEN != 64, "xlen must be 32 or 64"},
		{c.IssueWidth != 1 && c.IssueWidth != 2, "issue_width must be 1 or 2"},
		{c.HasITLB != c.HasDTLB, "translation needs both itlb and dtlb"},
		{c.VMEnabled() && c.XLEN != 64, "translation needs xlen 64 (Sv39)"},
		{c.EnableOutOfOrder && c.IssueWidth != 2, "out-of-order backend needs issue_width 2"},
		{c.FetchQueueDepth <= 0, "fetch_queue_depth must be > 0"},
		{c.IBufferDepth < 2, "ibuffer_depth must hold a full fetch packet"},
		{c.DecodeQueueDepth < c.IssueWidth, "decode_queue_depth must be >= issue_width"},
		{c.BackendQueueDepth < c.IssueWidth, "backend_queue_depth must be >= issue_width"},
		{c.LinkDepth <= 0, "link_depth must be > 0"},
		{c.EnableOutOfOrder && c.ROBSize < 2, "rob_size must be >= 2"},
		{c.EnableOutOfOrder && c.MaxInflightLoads <= 0, "max_inflight_loads must be > 0"},
		{c.DataBusIDBits <= 0 || c.DataBusIDBits > 16, "data_bus_id_bits must be in 1..16"},
		{c.ResetVector&3 != 0, "reset_vector must be 4-byte aligned"},
		{c.Timing == nil, "timing must be set"},
	}

	for _, check := range checks {
		if check.bad {
			return fmt.Errorf("%w: %s", ErrInvalid, check.msg)
		}
	}

	if err := c.Timing.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if err := c.validateCaches(); err != nil {
		return err
	}

	if _, err := addrspace.NewClassifier(c.MMIORanges()...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return nil
}

func (c *Config) validateCaches() error {
	caches := []struct {
		name    string
		present bool
		cache   CacheConfig
	}{
		{"icache", c.HasICache, c.ICache},
		{"dcache", c.HasDCache, c.DCache},
	}

	for _, cc := range caches {
		if !cc.present {
			continue
		}

		if err := cc.cache.validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalid, cc.name, err)
		}
	}

	tlbs := []struct {
		name    string
		present bool
		tlb     TLBConfig
	}{
		{"itlb", c.HasITLB, c.ITLB},
		{"dtlb", c.HasDTLB, c.DTLB},
	}

	for _, t := range tlbs {
		if t.present && (t.tlb.Ways <= 0 || t.tlb.Entries%t.tlb.Ways != 0 || t.tlb.Entries == 0) {
			return fmt.Errorf("%w: %s: entries must be a positive multiple of ways",
				ErrInvalid, t.name)
		}
	}

	return nil
}

func (cc CacheConfig) validate() error {
	if !isPowerOfTwo(cc.BlockSize) || cc.BlockSize < 8 {
		return fmt.Errorf("block_size must be a power of two >= 8")
	}

	if cc.Associativity <= 0 || cc.Size%(cc.Associativity*cc.BlockSize) != 0 ||
		cc.Size == 0 {
		return fmt.Errorf("size must be a positive multiple of associativity*block_size")
	}

	if !isPowerOfTwo(cc.Size / (cc.Associativity * cc.BlockSize)) {
		return fmt.Errorf("number of sets must be a power of two")
	}

	if cc.HitLatency == 0 {
		return fmt.Errorf("hit_latency must be > 0")
	}

	return nil
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
