package cpufeatures

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"strings"
)

// ErrInvalidISATable is returned when an ISA table cannot be built.
var ErrInvalidISATable = errors.New("invalid ISA table")

// MaxISANames is the largest number of names an [ISATable] may hold.
const MaxISANames = 64

// ISATable is a versioned, ordered list of ISA extension names as they
// appear in the cpuinfo "flags" line. Bit i of an [ISAMask] refers to
// the i-th name of the table it was detected with.
type ISATable struct {
	version string
	names   []string
}

// NewISATable builds an ISA table. Names must be unique, non-empty and free
// of whitespace and commas.
func NewISATable(version string, names ...string) (*ISATable, error) {
	if strings.TrimSpace(version) == "" {
		return nil, fmt.Errorf("%w: empty version", ErrInvalidISATable)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s: no names", ErrInvalidISATable, version)
	}
	if len(names) > MaxISANames {
		return nil, fmt.Errorf("%w: %s: %d names, at most %d", ErrInvalidISATable, version, len(names), MaxISANames)
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" || strings.ContainsAny(name, ", \t\n") {
			return nil, fmt.Errorf("%w: %s: bad name %q", ErrInvalidISATable, version, name)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %s: duplicate name %q", ErrInvalidISATable, version, name)
		}
		seen[name] = struct{}{}
	}
	return &ISATable{version: version, names: slices.Clone(names)}, nil
}

func mustISATable(version string, names ...string) *ISATable {
	t, err := NewISATable(version, names...)
	if err != nil {
		panic(err)
	}
	return t
}

var (
	// ISATableV1 is the first table, without ssse3.
	ISATableV1 = mustISATable("v1",
		"sse", "sse2", "sse4_1", "sse4_2",
		"avx", "avx2",
		"avx512f", "avx512dq", "avx512cd", "avx512bw", "avx512vl", "avx512_vnni",
	)
	// ISATableV2 adds ssse3. It is the default.
	ISATableV2 = mustISATable("v2",
		"sse", "sse2", "ssse3", "sse4_1", "sse4_2",
		"avx", "avx2",
		"avx512f", "avx512dq", "avx512cd", "avx512bw", "avx512vl", "avx512_vnni",
	)

	// DefaultISATable is used when no table is configured.
	DefaultISATable = ISATableV2

	builtinISATables = []*ISATable{ISATableV1, ISATableV2}
)

// LookupISATable returns the built-in table with the given version.
func LookupISATable(version string) (*ISATable, bool) {
	for _, t := range builtinISATables {
		if strings.EqualFold(t.version, version) {
			return t, true
		}
	}
	return nil, false
}

// ISATables returns the built-in tables, oldest first.
func ISATables() []*ISATable {
	return slices.Clone(builtinISATables)
}

// Version returns the table version.
func (t *ISATable) Version() string {
	return t.version
}

// Names returns a copy of the table's names in bit order.
func (t *ISATable) Names() []string {
	return slices.Clone(t.names)
}

// Len returns the number of names in the table.
func (t *ISATable) Len() int {
	return len(t.names)
}

// Name returns the name of bit i.
func (t *ISATable) Name(i int) string {
	return t.names[i]
}

// Index returns the bit of name.
func (t *ISATable) Index(name string) (int, bool) {
	i := slices.Index(t.names, name)
	return i, i >= 0
}

// Detect returns the mask of table names that occur as whole tokens in a
// whitespace-separated flags list.
func (t *ISATable) Detect(flags string) ISAMask {
	var m ISAMask
	for i, name := range t.names {
		if ContainsToken(flags, name, "") {
			m = m.Set(i)
		}
	}
	return m
}

// Expand returns the names of the bits set in m, in table order.
func (t *ISATable) Expand(m ISAMask) []string {
	var out []string
	for i, name := range t.names {
		if m.Has(i) {
			out = append(out, name)
		}
	}
	return out
}

func (t *ISATable) String() string {
	return t.version + ": " + strings.Join(t.names, " ")
}

// ISAMask is a bitset over an [ISATable].
type ISAMask uint64

// Has reports whether bit i is set.
func (m ISAMask) Has(i int) bool {
	return i >= 0 && i < MaxISANames && m&(1<<uint(i)) != 0
}

// Set returns m with bit i set.
func (m ISAMask) Set(i int) ISAMask {
	if i < 0 || i >= MaxISANames {
		return m
	}
	return m | 1<<uint(i)
}

// Count returns the number of set bits.
func (m ISAMask) Count() int {
	return bits.OnesCount64(uint64(m))
}
