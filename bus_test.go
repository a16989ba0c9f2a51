package cpufeatures

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeEnumerator struct {
	devices []Device
	err     error
}

func (e fakeEnumerator) Devices() ([]Device, error) {
	return e.devices, e.err
}

func TestDeviceTable_Lookup(t *testing.T) {
	tests := []struct {
		name    string
		devices []Device
		want    string
	}{
		{
			name: "known GPUs once each",
			devices: []Device{
				{VendorID: 0x10de, DeviceID: 0x1db6, Class: 0x030200},
				{VendorID: 0x10de, DeviceID: 0x1db5, Class: 0x030200},
				{VendorID: 0x1002, DeviceID: 0x738c, Class: 0x038000},
				{VendorID: 0x10de, DeviceID: 0x20b5, Class: 0x030200},
			},
			want: "PCI::GPU::V100,PCI::GPU::MI100,PCI::GPU::A100",
		},
		{
			name: "class filter",
			devices: []Device{
				{VendorID: 0x10de, DeviceID: 0x1eb8, Class: 0x040300},
				{VendorID: 0x10de, DeviceID: 0x2235, Class: 0x030000},
			},
			want: "PCI::GPU::A40",
		},
		{
			name: "unknown devices",
			devices: []Device{
				{VendorID: 0x8086, DeviceID: 0x3e92, Class: 0x030000},
				{VendorID: 0x10de, DeviceID: 0xffff, Class: 0x030000},
			},
			want: "",
		},
		{
			name: "no devices",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DefaultDeviceTable.Lookup(fakeEnumerator{devices: tt.devices}, DisplayControllerClass, DisplayControllerClassMask)
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Lookup() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeviceTable_LookupManyDevices(t *testing.T) {
	var devices []Device
	for i := 0; i < 1024; i++ {
		devices = append(devices,
			Device{VendorID: 0x10de, DeviceID: 0x1db6, Class: 0x030200},
			Device{VendorID: 0x1002, DeviceID: 0x738c, Class: 0x038000},
		)
	}
	got, err := DefaultDeviceTable.Lookup(fakeEnumerator{devices: devices}, DisplayControllerClass, DisplayControllerClassMask)
	if err != nil {
		t.Fatal(err)
	}
	if got != "PCI::GPU::V100,PCI::GPU::MI100" {
		t.Errorf("Lookup() = %q", got)
	}
}

func TestDeviceTable_LookupError(t *testing.T) {
	boom := errors.New("boom")
	_, err := DefaultDeviceTable.Lookup(fakeEnumerator{err: boom}, DisplayControllerClass, DisplayControllerClassMask)
	if !errors.Is(err, boom) {
		t.Fatalf("Lookup() error = %v, want it to wrap boom", err)
	}
}

func TestDeviceTable_Tag(t *testing.T) {
	if tag, ok := DefaultDeviceTable.Tag(0x10de, 0x15f7); !ok || tag != "PCI::GPU::P100" {
		t.Errorf("Tag(10de, 15f7) = %q, %v", tag, ok)
	}
	if _, ok := DefaultDeviceTable.Tag(0x1002, 0x1db6); ok {
		t.Error("Tag(1002, 1db6) matched an NVIDIA device")
	}
	for _, v := range DefaultDeviceTable {
		for _, d := range v.Devices {
			if KindOf(d.Tag) != KindPCI {
				t.Errorf("default tag %q is not a PCI tag", d.Tag)
			}
		}
	}
}

func TestDeviceTable_String(t *testing.T) {
	table := DeviceTable{
		{VendorID: 0x1002, Devices: []DeviceFeature{{DeviceID: 0x66a1, Tag: "PCI::GPU::MI50"}}},
	}
	want := "0x1002\n0x1002 0x66A1 PCI::GPU::MI50\n"
	if got := table.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestSysfsEnumerator(t *testing.T) {
	devices, err := SysfsEnumerator{Root: "testdata/sysfs"}.Devices()
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	want := []Device{
		{VendorID: 0x8086, DeviceID: 0x3e92, Class: 0x030000},
		{VendorID: 0x8086, DeviceID: 0x15bb, Class: 0x020000},
		{VendorID: 0x10de, DeviceID: 0x1db6, Class: 0x030200},
		{VendorID: 0x10de, DeviceID: 0x1db6, Class: 0x030200},
	}
	if len(devices) != len(want) {
		t.Fatalf("Devices() = %+v, want %+v", devices, want)
	}
	for i := range want {
		if devices[i] != want[i] {
			t.Errorf("device[%d] = %+v, want %+v", i, devices[i], want[i])
		}
	}

	tags, err := DefaultDeviceTable.Lookup(SysfsEnumerator{Root: "testdata/sysfs"}, DisplayControllerClass, DisplayControllerClassMask)
	if err != nil {
		t.Fatal(err)
	}
	if tags != "PCI::GPU::V100" {
		t.Errorf("Lookup() = %q, want PCI::GPU::V100", tags)
	}
}

func TestSysfsEnumerator_SkipsBrokenFunctions(t *testing.T) {
	root := t.TempDir()
	write := func(dir, name, content string) {
		t.Helper()
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(root, dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	write("good", "vendor", "0x10de\n")
	write("good", "device", "0x20b5\n")
	write("good", "class", "0x030200\n")
	write("missing-class", "vendor", "0x10de\n")
	write("missing-class", "device", "0x20b5\n")
	write("bad-hex", "vendor", "nvidia\n")
	write("bad-hex", "device", "0x20b5\n")
	write("bad-hex", "class", "0x030200\n")

	devices, err := SysfsEnumerator{Root: root}.Devices()
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 1 || devices[0].DeviceID != 0x20b5 {
		t.Errorf("Devices() = %+v, want only the good function", devices)
	}
}

func TestSysfsEnumerator_MissingRoot(t *testing.T) {
	_, err := SysfsEnumerator{Root: filepath.Join(t.TempDir(), "nope")}.Devices()
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Devices() error = %v, want os.ErrNotExist", err)
	}
}

func TestParseHexID(t *testing.T) {
	tests := []struct {
		input   string
		bits    int
		want    uint64
		wantErr bool
	}{
		{"0x10de", 16, 0x10de, false},
		{"0X10DE", 16, 0x10de, false},
		{"10de", 16, 0x10de, false},
		{"0x030200", 24, 0x030200, false},
		{"0x1000000", 24, 0, true},
		{"", 16, 0, true},
		{"0xzz", 16, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseHexID(tt.input, tt.bits)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHexID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseHexID(%q) = %#x, want %#x", tt.input, got, tt.want)
			}
		})
	}
	if _, err := parseHexID("0x", 16); err == nil || !strings.Contains(err.Error(), "parse hex id") {
		t.Errorf("parseHexID(0x) error = %v", err)
	}
}
