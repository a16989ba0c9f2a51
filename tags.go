package cpufeatures

import (
	"strconv"
	"strings"
)

// Tag prefixes owned by this package.
const (
	PrefixVendor = "VENDOR::"
	PrefixModel  = "MODEL::"
	PrefixCache  = "CACHE::"
	PrefixISA    = "ISA::"
	PrefixPCI    = "PCI::"
)

const (
	tagSeparator = ","
	jobSeparator = "&"

	defaultDelimiters = " \t"
)

// IsOwned reports whether tag carries one of the prefixes this package
// generates. The comparison is a case-sensitive prefix match.
func IsOwned(tag string) bool {
	return KindOf(tag) != KindUnknown
}

// ContainsToken reports whether token occurs in list as a whole token, that
// is bounded on both sides by the start or end of list or by one of the
// delimiters. An empty delimiters string means space and tab.
func ContainsToken(list, token, delimiters string) bool {
	if list == "" || token == "" {
		return false
	}
	if delimiters == "" {
		delimiters = defaultDelimiters
	}
	for from := 0; from <= len(list)-len(token); {
		i := strings.Index(list[from:], token)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(token)
		before := start == 0 || strings.IndexByte(delimiters, list[start-1]) >= 0
		after := end == len(list) || strings.IndexByte(delimiters, list[end]) >= 0
		if before && after {
			return true
		}
		from = start + 1
	}
	return false
}

// Tags renders the record as a comma-joined tag string in the order vendor,
// model, cache, then ISA extensions in table order. Absent fields are skipped.
func (f *Features) Tags() string {
	return strings.Join(f.TagList(), tagSeparator)
}

// TagList is [Features.Tags] before joining.
func (f *Features) TagList() []string {
	var out []string
	if f.Vendor != "" {
		out = append(out, PrefixVendor+sanitizeTagValue(f.Vendor))
	}
	if f.Model != "" {
		out = append(out, PrefixModel+sanitizeTagValue(f.Model))
	}
	if f.CacheKB != 0 {
		out = append(out, PrefixCache+strconv.FormatUint(f.CacheKB, 10)+"KB")
	}
	for _, name := range f.ISANames() {
		out = append(out, PrefixISA+name)
	}
	return out
}

// sanitizeTagValue keeps a value from splitting its tag.
func sanitizeTagValue(v string) string {
	return strings.ReplaceAll(v, tagSeparator, "_")
}

// JoinTags joins non-empty tag strings with commas.
func JoinTags(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, tagSeparator)
}

// SplitTags splits a comma-joined tag string, dropping empty tokens.
func SplitTags(s string) []string {
	return splitNonEmpty(s, tagSeparator)
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, tok := range strings.Split(s, sep) {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// FilterJobFeatures returns the owned tokens of an ampersand-separated job
// feature request, comma-joined in request order. If none are owned the
// request is returned unchanged.
func FilterJobFeatures(request string) string {
	var owned []string
	for _, tok := range splitNonEmpty(request, jobSeparator) {
		if IsOwned(tok) {
			owned = append(owned, tok)
		}
	}
	if len(owned) == 0 {
		return request
	}
	return strings.Join(owned, tagSeparator)
}

// ValidJobFeatures reports whether a job feature request is acceptable.
// Any request is; matching against nodes happens in the scheduler.
func ValidJobFeatures(string) bool {
	return true
}
