package cpufeatures

import (
	"math"
	"strconv"
	"strings"
)

// extractor turns the value of one recognized cpuinfo line into a field of
// the record. It reports false when the value is rejected.
type extractor interface {
	extract(f *Features, value string) bool
}

// verbatimExtractor copies the value into a string field.
type verbatimExtractor struct {
	field Field
}

func (e verbatimExtractor) extract(f *Features, value string) bool {
	f.set(e.field, strings.Clone(value))
	return true
}

// cacheSizeExtractor parses "<number> [G|M|K|B][B]" into kilobytes.
type cacheSizeExtractor struct{}

func (cacheSizeExtractor) extract(f *Features, value string) bool {
	kb, ok := parseCacheSize(value)
	if ok {
		f.CacheKB = kb
	}
	return ok
}

// parseCacheSize returns the size described by s in kilobytes. A bare
// number is taken to be kilobytes already.
func parseCacheSize(s string) (uint64, bool) {
	n := scanNumber(s)
	if n == 0 {
		return 0, false
	}
	val, err := strconv.ParseFloat(s[:n], 64)
	if err != nil {
		return 0, false
	}

	rest := strings.TrimLeft(s[n:], " \t\n\v\f\r")
	if rest != "" {
		switch rest[0] {
		case 'G', 'g':
			val *= 1024 * 1024
			rest = rest[1:]
		case 'M', 'm':
			val *= 1024
			rest = rest[1:]
		case 'K', 'k':
			rest = rest[1:]
		case 'B', 'b':
			// Bytes; the B itself is consumed below.
			val /= 1024
		}
	}
	if rest != "" && (rest[0] == 'B' || rest[0] == 'b') {
		rest = rest[1:]
	}
	if rest != "" {
		return 0, false
	}
	if val < 0 || val >= math.MaxUint64 || math.IsNaN(val) {
		return 0, false
	}
	return uint64(val), true
}

// scanNumber returns the length of the leading decimal number in s, with
// optional '+' sign, fraction and exponent, or 0 if s does not start with
// one. A '-' sign is not accepted.
func scanNumber(s string) int {
	i, digits := 0, 0
	if i < len(s) && s[i] == '+' {
		i++
	}
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			i = j
		}
	}
	return i
}

// modelNameExtractor isolates a short model designator from the marketing
// string, roughly
//
//	(Gold |EPYC )?[A-Za-z0-9][A-Za-z-]*[0-9][A-Za-z0-9-]*( v[0-9]+)?
type modelNameExtractor struct{}

var modelLeadIns = []string{"Gold ", "EPYC "}

func (modelNameExtractor) extract(f *Features, value string) bool {
	model, ok := distillModel(value)
	if ok {
		f.Model = model
	}
	return ok
}

// distillModel returns the model designator of a "model name" value with
// spaces replaced by underscores.
func distillModel(s string) (string, bool) {
	for _, lead := range modelLeadIns {
		i := strings.Index(s, lead)
		if i < 0 {
			continue
		}
		// Only the first lead-in found is tried; on failure the whole
		// string is scanned without one.
		if end, ok := matchModelToken(s, i+len(lead)); ok {
			return underscore(s[i:end]), true
		}
		break
	}

	for start := 0; start < len(s); start++ {
		end, ok := matchModelToken(s, start)
		if !ok {
			continue
		}
		end = matchVersionSuffix(s, end)
		return underscore(s[start:end]), true
	}
	return "", false
}

// matchModelToken matches [A-Za-z0-9][A-Za-z-]*[0-9][A-Za-z0-9-]* at
// s[start:] and returns the end offset.
func matchModelToken(s string, start int) (int, bool) {
	if start >= len(s) || !isAlnum(s[start]) {
		return 0, false
	}
	e := start + 1
	for e < len(s) && (isAlpha(s[e]) || s[e] == '-') {
		e++
	}
	if e >= len(s) || !isDigit(s[e]) {
		return 0, false
	}
	e++
	for e < len(s) && (isAlnum(s[e]) || s[e] == '-') {
		e++
	}
	return e, true
}

// matchVersionSuffix extends end over a directly following " v<digits>".
func matchVersionSuffix(s string, end int) int {
	if end+2 < len(s) && s[end] == ' ' && s[end+1] == 'v' && isDigit(s[end+2]) {
		end += 2
		for end < len(s) && isDigit(s[end]) {
			end++
		}
	}
	return end
}

func underscore(s string) string {
	return strings.ReplaceAll(s, " ", "_")
}

// flagsExtractor recomputes the ISA mask from the "flags" line.
type flagsExtractor struct{}

func (flagsExtractor) extract(f *Features, value string) bool {
	if f.Table == nil {
		f.Table = DefaultISATable
	}
	f.ISA = f.Table.Detect(value)
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlpha(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func isAlnum(c byte) bool { return isDigit(c) || isAlpha(c) }
