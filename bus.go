package cpufeatures

import (
	"fmt"
	"strings"
)

// PCI display controllers (class 0x03).
const (
	DisplayControllerClass     uint32 = 0x030000
	DisplayControllerClassMask uint32 = 0xFF0000
)

// Device is one function found on the PCI bus.
type Device struct {
	VendorID uint16
	DeviceID uint16
	// Class is the 24-bit class code (base, sub-class, prog-if).
	Class uint32
}

// DeviceEnumerator lists the devices present on a bus.
type DeviceEnumerator interface {
	Devices() ([]Device, error)
}

// DeviceFeature maps a device ID to the tag it contributes.
type DeviceFeature struct {
	DeviceID uint16
	Tag      string
}

// VendorDevices lists the known devices of one vendor.
type VendorDevices struct {
	VendorID uint16
	Devices  []DeviceFeature
}

// DeviceTable is a vendor → device → tag lookup table.
type DeviceTable []VendorDevices

// DefaultDeviceTable holds the GPUs of a typical HPC cluster.
var DefaultDeviceTable = DeviceTable{
	{VendorID: 0x10de, Devices: []DeviceFeature{
		{DeviceID: 0x15f7, Tag: "PCI::GPU::P100"}, // P100 PCIe 12GB
		{DeviceID: 0x1db5, Tag: "PCI::GPU::V100"}, // V100 SXM2 32GB
		{DeviceID: 0x1db6, Tag: "PCI::GPU::V100"}, // V100 PCIe 32GB
		{DeviceID: 0x1eb8, Tag: "PCI::GPU::T4"},
		{DeviceID: 0x20b5, Tag: "PCI::GPU::A100"}, // A100 PCIe 80GB
		{DeviceID: 0x2235, Tag: "PCI::GPU::A40"},
	}},
	{VendorID: 0x1002, Devices: []DeviceFeature{
		{DeviceID: 0x66a1, Tag: "PCI::GPU::MI50"},
		{DeviceID: 0x738c, Tag: "PCI::GPU::MI100"},
	}},
}

// Tag returns the tag for a vendor/device pair.
func (t DeviceTable) Tag(vendorID, deviceID uint16) (string, bool) {
	for _, v := range t {
		if v.VendorID != vendorID {
			continue
		}
		for _, d := range v.Devices {
			if d.DeviceID == deviceID {
				return d.Tag, true
			}
		}
	}
	return "", false
}

// Lookup enumerates the bus and returns the comma-joined tags of every
// known device whose class matches class under mask. Each tag appears once.
func (t DeviceTable) Lookup(e DeviceEnumerator, class, mask uint32) (string, error) {
	devices, err := e.Devices()
	if err != nil {
		return "", fmt.Errorf("enumerate devices: %w", err)
	}

	var tags []string
	seen := make(map[string]struct{})
	for _, d := range devices {
		if d.Class&mask != class&mask {
			continue
		}
		tag, ok := t.Tag(d.VendorID, d.DeviceID)
		if !ok {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}
	return strings.Join(tags, tagSeparator), nil
}

// String lists the table one vendor and one device per line.
func (t DeviceTable) String() string {
	var b strings.Builder
	for _, v := range t {
		fmt.Fprintf(&b, "0x%04X\n", v.VendorID)
		for _, d := range v.Devices {
			fmt.Fprintf(&b, "0x%04X 0x%04X %s\n", v.VendorID, d.DeviceID, d.Tag)
		}
	}
	return b.String()
}
