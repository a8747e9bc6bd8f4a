package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevoDB/blockdisk/pkg/record"
)

const (
	DefaultManifestFileName = "MANIFEST"
	DefaultImageFileName    = "disk.img"
	CurrentManifestVersion  = 1

	// MaxDimension is the largest tier, group or unit count; each address
	// component is stored in one byte and zero is reserved.
	MaxDimension = 255
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrManifestNotFound = errors.New("manifest not found")
	ErrInvalidManifest  = errors.New("invalid manifest")
)

type SyncMode int

const (
	SyncNone SyncMode = iota
	SyncImmediate
)

func (m SyncMode) String() string {
	switch m {
	case SyncNone:
		return "none"
	case SyncImmediate:
		return "immediate"
	default:
		return fmt.Sprintf("SyncMode(%d)", int(m))
	}
}

// Config describes the geometry and block size of a simulated medium.
type Config struct {
	Version int `json:"version"`

	// Geometry
	Tiers  int `json:"tiers"`
	Groups int `json:"groups"`
	Units  int `json:"units"`

	// BlockSize is the raw block size in bytes, header included
	BlockSize int `json:"block_size"`

	// File medium
	ImageFile string   `json:"image_file"`
	SyncMode  SyncMode `json:"sync_mode"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig(dbPath string) *Config {
	return &Config{
		Version: CurrentManifestVersion,

		Tiers:  8,
		Groups: 16,
		Units:  16,

		BlockSize: 64, // 60 payload bytes per block

		ImageFile: filepath.Join(dbPath, DefaultImageFileName),
		SyncMode:  SyncNone,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	for _, dim := range []struct {
		name string
		v    int
	}{{"tiers", c.Tiers}, {"groups", c.Groups}, {"units", c.Units}} {
		if dim.v < 1 || dim.v > MaxDimension {
			return fmt.Errorf("%w: %s must be between 1 and %d, got %d",
				ErrInvalidConfig, dim.name, MaxDimension, dim.v)
		}
	}

	if c.BlockSize <= record.HeaderSize {
		return fmt.Errorf("%w: block size must exceed the %d byte header, got %d",
			ErrInvalidConfig, record.HeaderSize, c.BlockSize)
	}

	if c.ImageFile == "" {
		return fmt.Errorf("%w: image file not specified", ErrInvalidConfig)
	}

	if c.SyncMode != SyncNone && c.SyncMode != SyncImmediate {
		return fmt.Errorf("%w: unknown sync mode %d", ErrInvalidConfig, c.SyncMode)
	}

	return nil
}

// Capacity returns the payload bytes each block holds
func (c *Config) Capacity() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.BlockSize - record.HeaderSize
}

// BlockCount returns the number of addressable blocks
func (c *Config) BlockCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Tiers * c.Groups * c.Units
}

// Dimensions returns tiers, groups and units
func (c *Config) Dimensions() (tiers, groups, units int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Tiers, c.Groups, c.Units
}

// LoadConfigFromManifest loads the configuration stored next to a medium
func LoadConfigFromManifest(dbPath string) (*Config, error) {
	manifestPath := filepath.Join(dbPath, DefaultManifestFileName)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrManifestNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	// Relative image paths are relative to the manifest directory
	if cfg.ImageFile != "" && !filepath.IsAbs(cfg.ImageFile) {
		cfg.ImageFile = filepath.Join(dbPath, cfg.ImageFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveManifest saves the configuration to the manifest file
func (c *Config) SaveManifest(dbPath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	manifestPath := filepath.Join(dbPath, DefaultManifestFileName)
	tempPath := manifestPath + ".tmp"

	stored := &Config{
		Version:   c.Version,
		Tiers:     c.Tiers,
		Groups:    c.Groups,
		Units:     c.Units,
		BlockSize: c.BlockSize,
		ImageFile: manifestImagePath(dbPath, c.ImageFile),
		SyncMode:  c.SyncMode,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := os.Rename(tempPath, manifestPath); err != nil {
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	return nil
}

// manifestImagePath returns image relative to dbPath, the form
// LoadConfigFromManifest resolves. Mixed absolute and relative paths fall
// back to an absolute image path.
func manifestImagePath(dbPath, image string) string {
	if rel, err := filepath.Rel(dbPath, image); err == nil {
		return rel
	}
	if abs, err := filepath.Abs(image); err == nil {
		return abs
	}
	return image
}

// LoadOrCreate loads the manifest in dbPath, or writes base there when none
// exists yet.
func LoadOrCreate(dbPath string, base *Config) (*Config, bool, error) {
	cfg, err := LoadConfigFromManifest(dbPath)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, ErrManifestNotFound) {
		return nil, false, err
	}

	if base == nil {
		base = NewDefaultConfig(dbPath)
	}
	if err := base.SaveManifest(dbPath); err != nil {
		return nil, false, err
	}
	return base, true, nil
}

// Clone returns a copy of the configuration
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Config{
		Version:   c.Version,
		Tiers:     c.Tiers,
		Groups:    c.Groups,
		Units:     c.Units,
		BlockSize: c.BlockSize,
		ImageFile: c.ImageFile,
		SyncMode:  c.SyncMode,
	}
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
