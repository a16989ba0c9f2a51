package cpufeatures

import (
	"log/slog"
	"sync"
)

// DefaultCPUInfoPath is the file read when no other source is configured.
const DefaultCPUInfoPath = "/proc/cpuinfo"

// detectConfig holds the configuration for a detection run.
type detectConfig struct {
	cpuinfoPath string
	chunkSize   int
	maxLineSize int
	isaTable    *ISATable

	bus         bool
	deviceTable DeviceTable
	enumerator  DeviceEnumerator
	class       uint32
	classMask   uint32

	logger *slog.Logger
}

// DetectOption configures what [DetectWith] collects.
type DetectOption func(*detectConfig)

// WithCPUInfoPath reads path instead of /proc/cpuinfo.
// This is mostly useful for testing and for offline dumps.
func WithCPUInfoPath(path string) DetectOption {
	return func(c *detectConfig) {
		c.cpuinfoPath = path
	}
}

// WithChunkSize sets the read size used for the cpuinfo file.
func WithChunkSize(n int) DetectOption {
	return func(c *detectConfig) {
		c.chunkSize = n
	}
}

// WithMaxLineSize sets the longest cpuinfo line accepted.
func WithMaxLineSize(n int) DetectOption {
	return func(c *detectConfig) {
		c.maxLineSize = n
	}
}

// WithISATable selects the ISA table reported extensions come from.
func WithISATable(t *ISATable) DetectOption {
	return func(c *detectConfig) {
		c.isaTable = t
	}
}

// WithBusDetection enables PCI device tags from table for devices matching
// class under mask.
func WithBusDetection(table DeviceTable, class, mask uint32) DetectOption {
	return func(c *detectConfig) {
		c.bus = true
		c.deviceTable = table
		c.class = class
		c.classMask = mask
	}
}

// WithDeviceEnumerator replaces the sysfs enumerator used by bus detection.
func WithDeviceEnumerator(e DeviceEnumerator) DetectOption {
	return func(c *detectConfig) {
		c.enumerator = e
	}
}

// WithLogger sets the logger for detection diagnostics.
func WithLogger(l *slog.Logger) DetectOption {
	return func(c *detectConfig) {
		c.logger = l
	}
}

func newDetectConfig(opts []DetectOption) *detectConfig {
	cfg := &detectConfig{
		cpuinfoPath: DefaultCPUInfoPath,
		maxLineSize: DefaultMaxLineSize,
		isaTable:    DefaultISATable,
		deviceTable: DefaultDeviceTable,
		class:       DisplayControllerClass,
		classMask:   DisplayControllerClassMask,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = discardLogger()
	}
	if cfg.isaTable == nil {
		cfg.isaTable = DefaultISATable
	}
	if cfg.enumerator == nil {
		cfg.enumerator = defaultDeviceEnumerator()
	}
	return cfg
}

// Report is the outcome of one detection run.
type Report struct {
	// Source is the cpuinfo file that was parsed.
	Source string
	// KernelVersion is the running kernel release, empty off Linux.
	KernelVersion string
	// Features is never nil; it is empty when parsing failed.
	Features *Features
	// DeviceTags are the comma-joined bus device tags, if bus detection ran.
	DeviceTags string
}

// Tags returns every tag of the report: device tags first, then the
// cpuinfo tags.
func (r *Report) Tags() string {
	return JoinTags(r.DeviceTags, r.Features.Tags())
}

// DetectWith parses the cpuinfo source and, when enabled, enumerates the bus.
// A cpuinfo failure is returned together with a report holding an empty
// record; bus failures are logged and leave DeviceTags empty.
func DetectWith(opts ...DetectOption) (*Report, error) {
	cfg := newDetectConfig(opts)
	f, err := cfg.parse()
	return cfg.report(f), err
}

// DetectDevices enumerates the bus only and returns the comma-joined device
// tags. It returns an empty string when bus detection is not enabled.
func DetectDevices(opts ...DetectOption) (string, error) {
	return newDetectConfig(opts).lookupDevices()
}

func (c *detectConfig) lookupDevices() (string, error) {
	if !c.bus {
		return "", nil
	}
	return c.deviceTable.Lookup(c.enumerator, c.class, c.classMask)
}

func (c *detectConfig) deviceTags() string {
	tags, err := c.lookupDevices()
	if err != nil {
		c.logger.Warn("bus detection failed", "error", err)
		return ""
	}
	return tags
}

func (c *detectConfig) parse() (*Features, error) {
	p := NewParser(
		WithParserISATable(c.isaTable),
		WithParserChunkSize(c.chunkSize),
		WithParserMaxLineSize(c.maxLineSize),
		WithParserLogger(c.logger),
	)
	f, err := p.ParseFile(c.cpuinfoPath)
	if err != nil {
		c.logger.Debug("cpuinfo parse failed", "path", c.cpuinfoPath, "error", err)
	}
	return f, err
}

// report enumerates the bus on every call; only f may come from a cache.
func (c *detectConfig) report(f *Features) *Report {
	return &Report{
		Source:        c.cpuinfoPath,
		KernelVersion: KernelRelease(),
		Features:      f,
		DeviceTags:    c.deviceTags(),
	}
}

// Host owns the cached cpuinfo record of this machine. It is safe for
// concurrent use.
type Host struct {
	mu       sync.Mutex
	cfg      *detectConfig
	features *Features
}

// NewHost returns a Host that detects with opts on first use.
func NewHost(opts ...DetectOption) *Host {
	return &Host{cfg: newDetectConfig(opts)}
}

// Report returns a report built from the cached cpuinfo record, parsing on
// first use. Failed parses are not cached, so a later call retries. Bus
// devices are enumerated on every call.
//
// The Features of successive reports are the same shared record; callers
// must not modify it.
func (h *Host) Report() (*Report, error) {
	cfg, f, err := h.load()
	return cfg.report(f), err
}

func (h *Host) load() (*detectConfig, *Features, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.features != nil {
		return h.cfg, h.features, nil
	}
	f, err := h.cfg.parse()
	if err != nil {
		return h.cfg, f, err
	}
	h.features = f
	return h.cfg, f, nil
}

// Reset drops the cached record.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.features = nil
}

// Reconfigure replaces the detection options and drops the cached record.
func (h *Host) Reconfigure(opts ...DetectOption) {
	cfg := newDetectConfig(opts)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg = cfg
	h.features = nil
}

// NodeState appends this host's tags to the available and active feature
// lists. Both are returned unchanged when nothing was detected.
func (h *Host) NodeState(avail, active string) (string, string) {
	r, err := h.Report()
	if err != nil {
		return avail, active
	}
	tags := r.Tags()
	if tags == "" {
		return avail, active
	}
	return JoinTags(avail, tags), JoinTags(active, tags)
}

var defaultHost = NewHost()

// Detect detects this host's features with default options. The cpuinfo
// record is cached; use [DetectNoCache] to parse it again.
func Detect() (*Report, error) {
	return defaultHost.Report()
}

// DetectNoCache detects this host's features without using the cache.
func DetectNoCache() (*Report, error) {
	return DetectWith()
}

// ResetCache clears the cpuinfo record cached by [Detect].
func ResetCache() {
	defaultHost.Reset()
}
