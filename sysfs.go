package cpufeatures

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultSysfsPCIRoot is where Linux exposes PCI functions.
const DefaultSysfsPCIRoot = "/sys/bus/pci/devices"

// SysfsEnumerator lists PCI devices from sysfs.
type SysfsEnumerator struct {
	// Root defaults to DefaultSysfsPCIRoot.
	Root string
}

// Devices reads the vendor, device and class attributes of every function
// under Root. Functions with unreadable attributes are skipped.
func (s SysfsEnumerator) Devices() ([]Device, error) {
	root := s.Root
	if root == "" {
		root = DefaultSysfsPCIRoot
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	devices := make([]Device, 0, len(names))
	for _, name := range names {
		dir := filepath.Join(root, name)
		vendor, err := readSysfsHex(filepath.Join(dir, "vendor"), 16)
		if err != nil {
			continue
		}
		device, err := readSysfsHex(filepath.Join(dir, "device"), 16)
		if err != nil {
			continue
		}
		class, err := readSysfsHex(filepath.Join(dir, "class"), 24)
		if err != nil {
			continue
		}
		devices = append(devices, Device{
			VendorID: uint16(vendor),
			DeviceID: uint16(device),
			Class:    uint32(class),
		})
	}
	return devices, nil
}

// readSysfsHex reads a "0x..." attribute file.
func readSysfsHex(path string, bitSize int) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return parseHexID(strings.TrimSpace(string(data)), bitSize)
}

// parseHexID parses a hexadecimal ID with or without a 0x prefix.
func parseHexID(s string, bitSize int) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, bitSize)
	if err != nil {
		return 0, fmt.Errorf("parse hex id %q: %w", s, err)
	}
	return v, nil
}
