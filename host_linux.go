//go:build linux

package cpufeatures

import "golang.org/x/sys/unix"

// KernelRelease returns the kernel release string (e.g., "6.1.0-generic").
func KernelRelease() string {
	var uname unix.Utsname
	if err := unix.Uname(&uname); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uname.Release[:])
}

func defaultDeviceEnumerator() DeviceEnumerator {
	return SysfsEnumerator{}
}
