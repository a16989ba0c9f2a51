package cpufeatures

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOpen is returned when the input stream cannot be opened.
	ErrOpen = errors.New("open input")
	// ErrOutOfMemory is returned when a line outgrows the line buffer limit.
	ErrOutOfMemory = errors.New("line buffer exhausted")
	// ErrReadFailure is returned when the underlying stream fails before end-of-stream.
	ErrReadFailure = errors.New("read failure")
	// ErrUnsupportedPlatform is returned by bus enumeration off Linux.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// FeatureError represents a requested feature tag that the host does not advertise.
type FeatureError struct {
	Feature string
	Reason  string
	Err     error
}

func (e *FeatureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feature %s: %s: %v", e.Feature, e.Reason, e.Err)
	}
	return fmt.Sprintf("feature %s: %s", e.Feature, e.Reason)
}

func (e *FeatureError) Unwrap() error {
	return e.Err
}

// Kind is the TYPE part of a TYPE::VALUE feature tag.
type Kind int

const (
	// KindUnknown is any tag not owned by this package.
	KindUnknown Kind = iota
	// KindVendor is the CPU vendor string (VENDOR::GenuineIntel).
	KindVendor
	// KindModel is the distilled CPU model (MODEL::Gold_6248R).
	KindModel
	// KindCache is the cache size in kilobytes (CACHE::28160KB).
	KindCache
	// KindISA is a single ISA extension (ISA::avx2).
	KindISA
	// KindPCI is a device found on the PCI bus (PCI::GPU::V100).
	KindPCI
)

var kindPrefixes = []struct {
	kind   Kind
	prefix string
}{
	{KindVendor, PrefixVendor},
	{KindModel, PrefixModel},
	{KindCache, PrefixCache},
	{KindISA, PrefixISA},
	{KindPCI, PrefixPCI},
}

// KindOf returns the kind of tag, or KindUnknown when tag is not owned.
func KindOf(tag string) Kind {
	for _, kp := range kindPrefixes {
		if strings.HasPrefix(tag, kp.prefix) {
			return kp.kind
		}
	}
	return KindUnknown
}

// Prefix returns the tag prefix for k, including the trailing "::".
func (k Kind) Prefix() string {
	for _, kp := range kindPrefixes {
		if kp.kind == k {
			return kp.prefix
		}
	}
	return ""
}

func (k Kind) String() string {
	switch k {
	case KindUnknown:
		return "unknown"
	case KindVendor:
		return "vendor"
	case KindModel:
		return "model"
	case KindCache:
		return "cache"
	case KindISA:
		return "isa"
	case KindPCI:
		return "pci"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}
