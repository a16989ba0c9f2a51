//go:build linux

package cpufeatures

import (
	"strings"
	"testing"
)

func TestKernelRelease(t *testing.T) {
	release := KernelRelease()
	if release == "" {
		t.Fatal("KernelRelease() is empty on Linux")
	}
	if strings.ContainsRune(release, 0) {
		t.Errorf("KernelRelease() = %q contains NUL", release)
	}
}

func TestDefaultDeviceEnumerator(t *testing.T) {
	if _, ok := defaultDeviceEnumerator().(SysfsEnumerator); !ok {
		t.Errorf("defaultDeviceEnumerator() = %T, want SysfsEnumerator", defaultDeviceEnumerator())
	}
}
