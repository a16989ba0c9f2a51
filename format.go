package cpufeatures

import (
	"fmt"
	"strings"
)

// String returns a human-readable summary of the report.
func (r *Report) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Source: %s\n", r.Source)
	if r.KernelVersion != "" {
		fmt.Fprintf(&b, "Kernel: %s\n", r.KernelVersion)
	}
	b.WriteString("\n")

	b.WriteString(r.Features.String())

	if r.DeviceTags != "" {
		b.WriteString("\n")
		b.WriteString("Devices:\n")
		for _, tag := range SplitTags(r.DeviceTags) {
			fmt.Fprintf(&b, "  %s\n", tag)
		}
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Tags: %s\n", r.Tags())
	return b.String()
}

// String returns a human-readable summary of the record.
func (f *Features) String() string {
	var b strings.Builder

	b.WriteString("Processor:\n")
	writeField(&b, "  Vendor", f.Vendor)
	writeField(&b, "  Model", f.Model)
	if f.CacheKB != 0 {
		writeField(&b, "  Cache", fmt.Sprintf("%d KB", f.CacheKB))
	} else {
		writeField(&b, "  Cache", "")
	}

	version := "none"
	if f.Table != nil {
		version = f.Table.Version()
	}
	fmt.Fprintf(&b, "\nISA extensions (table %s):\n", version)
	if f.Table != nil {
		for i := 0; i < f.Table.Len(); i++ {
			status := "no"
			if f.ISA.Has(i) {
				status = "yes"
			}
			fmt.Fprintf(&b, "  %s: %s\n", f.Table.Name(i), status)
		}
	}
	return b.String()
}

func writeField(b *strings.Builder, name, value string) {
	if value == "" {
		value = "(not found)"
	}
	fmt.Fprintf(b, "%s: %s\n", name, value)
}

// Summary is a flat, encodable view of a [Report].
type Summary struct {
	Source        string   `json:"source" yaml:"source" cbor:"1,keyasint"`
	KernelVersion string   `json:"kernel_version,omitempty" yaml:"kernel_version,omitempty" cbor:"2,keyasint,omitempty"`
	Vendor        string   `json:"vendor,omitempty" yaml:"vendor,omitempty" cbor:"3,keyasint,omitempty"`
	Model         string   `json:"model,omitempty" yaml:"model,omitempty" cbor:"4,keyasint,omitempty"`
	CacheKB       uint64   `json:"cache_kb,omitempty" yaml:"cache_kb,omitempty" cbor:"5,keyasint,omitempty"`
	ISATable      string   `json:"isa_table" yaml:"isa_table" cbor:"6,keyasint"`
	ISA           []string `json:"isa" yaml:"isa" cbor:"7,keyasint"`
	Devices       []string `json:"devices,omitempty" yaml:"devices,omitempty" cbor:"8,keyasint,omitempty"`
	Tags          string   `json:"tags" yaml:"tags" cbor:"9,keyasint"`
}

// Summary returns the encodable view of the report.
func (r *Report) Summary() Summary {
	s := Summary{
		Source:        r.Source,
		KernelVersion: r.KernelVersion,
		Vendor:        r.Features.Vendor,
		Model:         r.Features.Model,
		CacheKB:       r.Features.CacheKB,
		ISA:           r.Features.ISANames(),
		Devices:       SplitTags(r.DeviceTags),
		Tags:          r.Tags(),
	}
	if s.ISA == nil {
		s.ISA = []string{}
	}
	if r.Features.Table != nil {
		s.ISATable = r.Features.Table.Version()
	}
	return s
}
