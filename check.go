package cpufeatures

import (
	"fmt"
	"strings"
)

// Check validates the owned tags of a job feature request against the
// report and returns a *[FeatureError] for the first one the host does not
// advertise, or nil if all are met. The request may be ampersand- or
// comma-separated; tags this package does not own are ignored.
func Check(r *Report, request string) error {
	tags := r.Tags()
	for _, tok := range splitRequest(request) {
		if !IsOwned(tok) {
			continue
		}
		if ContainsToken(tags, tok, tagSeparator) {
			continue
		}
		return &FeatureError{
			Feature: tok,
			Reason:  r.Diagnose(tok),
		}
	}
	return nil
}

func splitRequest(request string) []string {
	var out []string
	for _, part := range splitNonEmpty(request, jobSeparator) {
		for _, tok := range SplitTags(part) {
			if tok = strings.TrimSpace(tok); tok != "" {
				out = append(out, tok)
			}
		}
	}
	return out
}

// Diagnose returns a reason string explaining why tag is not advertised.
func (r *Report) Diagnose(tag string) string {
	f := r.Features
	value := strings.TrimPrefix(tag, KindOf(tag).Prefix())

	switch KindOf(tag) {
	case KindVendor:
		if f.Vendor == "" {
			return "no vendor_id found in " + r.Source
		}
		return fmt.Sprintf("vendor is %s", f.Vendor)
	case KindModel:
		if f.Model == "" {
			return "no recognizable model name found in " + r.Source
		}
		return fmt.Sprintf("model is %s", f.Model)
	case KindCache:
		if f.CacheKB == 0 {
			return "no cache size found in " + r.Source
		}
		return fmt.Sprintf("cache is %dKB", f.CacheKB)
	case KindISA:
		if f.Table == nil {
			return "no ISA table configured"
		}
		if _, ok := f.Table.Index(value); !ok {
			return fmt.Sprintf("%s is not tracked by ISA table %s", value, f.Table.Version())
		}
		return fmt.Sprintf("%s not in cpuinfo flags", value)
	case KindPCI:
		if r.DeviceTags == "" {
			return "no known PCI devices found (is bus detection enabled?)"
		}
		return "device not present on the PCI bus"
	}
	return "not owned by cpufeatures"
}
