package cpufeatures

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrNoConfig is returned when no configuration source is available.
var ErrNoConfig = errors.New("no cpufeatures config found")

// Configuration sources, in priority order after an explicit path.
const (
	ConfigEnv         = "CPUFEATURES_CONFIG"
	DefaultConfigPath = "/etc/cpufeatures/config.yaml"
)

// Config is the YAML configuration of the detector.
type Config struct {
	// CPUInfo is the cpuinfo file to parse.
	CPUInfo     string `yaml:"cpuinfo"`
	ChunkSize   int    `yaml:"chunk_size"`
	MaxLineSize int    `yaml:"max_line_size"`
	// ISATable selects a table by version, built-in or from ISATables.
	ISATable  string              `yaml:"isa_table"`
	ISATables map[string][]string `yaml:"isa_tables"`
	// Policy is the reconciliation policy name.
	Policy string     `yaml:"policy"`
	Bus    *BusConfig `yaml:"bus"`
}

// BusConfig configures PCI device detection.
type BusConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SysfsRoot string `yaml:"sysfs_root"`
	// Class and ClassMask are hexadecimal; they default to display controllers.
	Class     string         `yaml:"class"`
	ClassMask string         `yaml:"class_mask"`
	Vendors   []VendorConfig `yaml:"vendors"`
}

// VendorConfig lists the known devices of a PCI vendor.
type VendorConfig struct {
	ID      string         `yaml:"id"`
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig maps a PCI device ID to a tag.
type DeviceConfig struct {
	ID  string `yaml:"id"`
	Tag string `yaml:"tag"`
}

// ReadConfig loads the configuration from the first available source:
//  1. path, if not empty
//  2. $CPUFEATURES_CONFIG
//  3. /etc/cpufeatures/config.yaml
//
// An explicit path that cannot be read is an error of its own; otherwise
// [ErrNoConfig] is returned when no source exists.
func ReadConfig(path string) (*Config, error) {
	if path != "" {
		return LoadConfig(path)
	}

	sources := []string{os.Getenv(ConfigEnv), DefaultConfigPath}

	var lastErr error = os.ErrNotExist
	for _, src := range sources {
		if src == "" {
			continue
		}
		cfg, err := LoadConfig(src)
		if err == nil {
			return cfg, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %w", ErrNoConfig, lastErr)
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig parses a YAML configuration and validates it.
func ParseConfig(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if _, err := cfg.Table(); err != nil {
		return nil, err
	}
	if _, err := cfg.ReconcilePolicy(); err != nil {
		return nil, err
	}
	if _, err := cfg.DeviceTable(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Table resolves the configured ISA table. Custom tables take precedence
// over built-in ones of the same version.
func (c *Config) Table() (*ISATable, error) {
	if c.ISATable == "" {
		return DefaultISATable, nil
	}
	if names, ok := c.ISATables[c.ISATable]; ok {
		return NewISATable(c.ISATable, names...)
	}
	if t, ok := LookupISATable(c.ISATable); ok {
		return t, nil
	}
	return nil, fmt.Errorf("%w: unknown version %q", ErrInvalidISATable, c.ISATable)
}

// ReconcilePolicy resolves the configured reconciliation policy.
func (c *Config) ReconcilePolicy() (Policy, error) {
	return ParsePolicy(c.Policy)
}

// DeviceTable resolves the configured device table, or [DefaultDeviceTable]
// when no vendors are configured.
func (c *Config) DeviceTable() (DeviceTable, error) {
	if c.Bus == nil || len(c.Bus.Vendors) == 0 {
		return DefaultDeviceTable, nil
	}
	table := make(DeviceTable, 0, len(c.Bus.Vendors))
	for _, v := range c.Bus.Vendors {
		vid, err := parseHexID(v.ID, 16)
		if err != nil {
			return nil, fmt.Errorf("bus vendor: %w", err)
		}
		vd := VendorDevices{VendorID: uint16(vid)}
		for _, d := range v.Devices {
			did, err := parseHexID(d.ID, 16)
			if err != nil {
				return nil, fmt.Errorf("bus vendor %s device: %w", v.ID, err)
			}
			if KindOf(d.Tag) != KindPCI {
				return nil, fmt.Errorf("bus vendor %s device %s: tag %q must start with %s", v.ID, d.ID, d.Tag, PrefixPCI)
			}
			vd.Devices = append(vd.Devices, DeviceFeature{DeviceID: uint16(did), Tag: d.Tag})
		}
		table = append(table, vd)
	}
	return table, nil
}

func (b *BusConfig) classFilter() (uint32, uint32, error) {
	class, mask := DisplayControllerClass, DisplayControllerClassMask
	if b.Class != "" {
		v, err := parseHexID(b.Class, 24)
		if err != nil {
			return 0, 0, fmt.Errorf("bus class: %w", err)
		}
		class = uint32(v)
	}
	if b.ClassMask != "" {
		v, err := parseHexID(b.ClassMask, 24)
		if err != nil {
			return 0, 0, fmt.Errorf("bus class mask: %w", err)
		}
		mask = uint32(v)
	}
	return class, mask, nil
}

// DetectOptions turns the configuration into options for [DetectWith].
func (c *Config) DetectOptions(logger *slog.Logger) ([]DetectOption, error) {
	table, err := c.Table()
	if err != nil {
		return nil, err
	}
	opts := []DetectOption{WithISATable(table)}
	if c.CPUInfo != "" {
		opts = append(opts, WithCPUInfoPath(c.CPUInfo))
	}
	if c.ChunkSize > 0 {
		opts = append(opts, WithChunkSize(c.ChunkSize))
	}
	if c.MaxLineSize > 0 {
		opts = append(opts, WithMaxLineSize(c.MaxLineSize))
	}
	if logger != nil {
		opts = append(opts, WithLogger(logger))
	}
	if c.Bus != nil && c.Bus.Enabled {
		devices, err := c.DeviceTable()
		if err != nil {
			return nil, err
		}
		class, mask, err := c.Bus.classFilter()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithBusDetection(devices, class, mask))
		if c.Bus.SysfsRoot != "" {
			opts = append(opts, WithDeviceEnumerator(SysfsEnumerator{Root: c.Bus.SysfsRoot}))
		}
	}
	return opts, nil
}
