package cpufeatures

import (
	"bytes"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"testing"
)

func TestParser_ParseLine(t *testing.T) {
	p := NewParser()

	tests := []struct {
		name string
		line string
		want bool
	}{
		{"vendor", "vendor_id\t: GenuineIntel", true},
		{"keyword is case-insensitive", "VENDOR_ID : GenuineIntel", true},
		{"model", "model name\t: Intel(R) Xeon(R) Gold 6248R CPU @ 3.00GHz", true},
		{"cache", "cache size\t: 28160 KB", true},
		{"flags", "flags\t\t: sse avx", true},
		{"no colon", "vendor_id GenuineIntel", false},
		{"unknown keyword", "cpu MHz\t\t: 3000.000", false},
		{"keyword prefix", "flag : sse", false},
		{"keyword extension", "flagsx : sse", false},
		{"rejected value", "cache size : lots", false},
		{"rejected model", "model name : Virtual CPU", false},
		{"blank", "   ", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFeatures(nil)
			if got := p.ParseLine(f, tt.line); got != tt.want {
				t.Errorf("ParseLine(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParser_ParseLine_Values(t *testing.T) {
	p := NewParser()
	f := NewFeatures(nil)

	p.ParseLine(f, "vendor_id\t: GenuineIntel")
	p.ParseLine(f, "model name : AMD EPYC 7452 32-Core Processor")
	p.ParseLine(f, "cache size: 512 KB")
	p.ParseLine(f, "flags:sse sse2")

	if f.Vendor != "GenuineIntel" {
		t.Errorf("Vendor = %q", f.Vendor)
	}
	if f.Model != "EPYC_7452" {
		t.Errorf("Model = %q", f.Model)
	}
	if f.CacheKB != 512 {
		t.Errorf("CacheKB = %d", f.CacheKB)
	}
	if got := f.ISANames(); !slices.Equal(got, []string{"sse", "sse2"}) {
		t.Errorf("ISANames() = %v", got)
	}
}

func TestParser_LogsRejections(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := NewParser(WithParserLogger(logger))

	p.ParseLine(NewFeatures(nil), "cache size : lots")
	if !strings.Contains(buf.String(), "rejected cpuinfo line") {
		t.Errorf("log output = %q, want a rejection entry", buf.String())
	}
}

func TestParseFile(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		table *ISATable
		want  string
	}{
		{
			name:  "first block only",
			path:  "testdata/cpuinfo-gold",
			table: ISATableV2,
			want: "VENDOR::GenuineIntel,MODEL::Gold_6248R,CACHE::28160KB," +
				"ISA::sse,ISA::sse2,ISA::ssse3,ISA::sse4_1,ISA::sse4_2,ISA::avx,ISA::avx2," +
				"ISA::avx512f,ISA::avx512dq,ISA::avx512cd,ISA::avx512bw,ISA::avx512vl,ISA::avx512_vnni",
		},
		{
			name:  "v1 table",
			path:  "testdata/cpuinfo-epyc",
			table: ISATableV1,
			want:  "VENDOR::AuthenticAMD,MODEL::EPYC_7452,CACHE::512KB,ISA::sse,ISA::sse2,ISA::sse4_1,ISA::sse4_2,ISA::avx,ISA::avx2",
		},
		{
			name:  "gzip",
			path:  "testdata/cpuinfo-epyc.gz",
			table: ISATableV2,
			want:  "VENDOR::AuthenticAMD,MODEL::EPYC_7452,CACHE::512KB,ISA::sse,ISA::sse2,ISA::ssse3,ISA::sse4_1,ISA::sse4_2,ISA::avx,ISA::avx2",
		},
		{
			name:  "no trailing newline",
			path:  "testdata/cpuinfo-broadwell-noeol",
			table: ISATableV2,
			want:  "VENDOR::GenuineIntel,MODEL::E5-2680_v4,CACHE::35840KB,ISA::sse,ISA::sse2,ISA::ssse3,ISA::sse4_1,ISA::sse4_2,ISA::avx,ISA::avx2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewParser(WithParserISATable(tt.table)).ParseFile(tt.path)
			if err != nil {
				t.Fatalf("ParseFile() error = %v", err)
			}
			if got := f.Tags(); got != tt.want {
				t.Errorf("Tags() =\n  %s\nwant\n  %s", got, tt.want)
			}
		})
	}
}

func TestParseFile_OpenFailure(t *testing.T) {
	f, err := ParseFile("testdata/does-not-exist")
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("ParseFile() error = %v, want ErrOpen", err)
	}
	if f == nil || !f.Empty() {
		t.Errorf("ParseFile() record = %+v, want empty", f)
	}
}

func TestParser_Parse(t *testing.T) {
	t.Run("later flags line supersedes", func(t *testing.T) {
		input := "flags : sse sse2 avx\nflags : avx2\n"
		f, err := NewParser().Parse(strings.NewReader(input))
		if err != nil {
			t.Fatal(err)
		}
		if got := f.ISANames(); !slices.Equal(got, []string{"avx2"}) {
			t.Errorf("ISANames() = %v, want [avx2]", got)
		}
	})

	t.Run("whitespace-only line ends the record", func(t *testing.T) {
		input := "vendor_id : GenuineIntel\n \t \nmodel name : Intel(R) Xeon(R) Gold 6248R CPU\n"
		f, err := NewParser().Parse(strings.NewReader(input))
		if err != nil {
			t.Fatal(err)
		}
		if f.Model != "" {
			t.Errorf("Model = %q, want empty", f.Model)
		}
		if f.Vendor != "GenuineIntel" {
			t.Errorf("Vendor = %q", f.Vendor)
		}
	})

	t.Run("malformed lines are skipped", func(t *testing.T) {
		input := "garbage\ncache size : lots\ncache size : 1 MB\n: nothing\n"
		f, err := NewParser().Parse(strings.NewReader(input))
		if err != nil {
			t.Fatal(err)
		}
		if f.CacheKB != 1024 {
			t.Errorf("CacheKB = %d, want 1024", f.CacheKB)
		}
	})

	t.Run("line too long", func(t *testing.T) {
		input := "flags : " + strings.Repeat("x", 4096) + "\n"
		f, err := NewParser(WithParserMaxLineSize(1024)).Parse(strings.NewReader(input))
		if !errors.Is(err, ErrOutOfMemory) {
			t.Fatalf("Parse() error = %v, want ErrOutOfMemory", err)
		}
		if !f.Empty() {
			t.Errorf("record = %+v, want empty", f)
		}
	})

	t.Run("small chunks", func(t *testing.T) {
		input := "vendor_id : AuthenticAMD\nflags : " + strings.Repeat("sse ", 200) + "avx2\n"
		f, err := NewParser(WithParserChunkSize(MinChunkSize)).Parse(strings.NewReader(input))
		if err != nil {
			t.Fatal(err)
		}
		if got := f.ISANames(); !slices.Equal(got, []string{"sse", "avx2"}) {
			t.Errorf("ISANames() = %v", got)
		}
	})
}

func TestKeywords(t *testing.T) {
	want := []string{"cache size", "flags", "model name", "vendor_id"}
	if got := Keywords(); !slices.Equal(got, want) {
		t.Errorf("Keywords() = %v, want %v", got, want)
	}
}
