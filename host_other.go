//go:build !linux

package cpufeatures

// KernelRelease returns the empty string off Linux.
func KernelRelease() string {
	return ""
}

// unsupportedEnumerator stands in for sysfs where there is none.
type unsupportedEnumerator struct{}

func (unsupportedEnumerator) Devices() ([]Device, error) {
	return nil, ErrUnsupportedPlatform
}

func defaultDeviceEnumerator() DeviceEnumerator {
	return unsupportedEnumerator{}
}
