package cpufeatures

import (
	"errors"
	"io"
	"log/slog"
	"strings"
)

// registration binds a cpuinfo keyword to its extractor.
type registration struct {
	keyword string
	extract extractor
}

// registry is matched case-insensitively against the text before the
// first colon of each line.
var registry = []registration{
	{"cache size", cacheSizeExtractor{}},
	{"flags", flagsExtractor{}},
	{"model name", modelNameExtractor{}},
	{"vendor_id", verbatimExtractor{field: FieldVendor}},
}

// Keywords returns the recognized cpuinfo keywords.
func Keywords() []string {
	out := make([]string, 0, len(registry))
	for _, r := range registry {
		out = append(out, r.keyword)
	}
	return out
}

func lookup(keyword string) (extractor, bool) {
	for _, r := range registry {
		if len(r.keyword) == len(keyword) && strings.EqualFold(r.keyword, keyword) {
			return r.extract, true
		}
	}
	return nil, false
}

// parserConfig holds the configuration for a parse.
type parserConfig struct {
	table       *ISATable
	chunkSize   int
	maxLineSize int
	logger      *slog.Logger
}

// ParserOption configures a [Parser].
type ParserOption func(*parserConfig)

// WithParserISATable sets the ISA table flags lines are matched against.
func WithParserISATable(t *ISATable) ParserOption {
	return func(c *parserConfig) {
		if t != nil {
			c.table = t
		}
	}
}

// WithParserChunkSize sets the read size of the line reader.
func WithParserChunkSize(n int) ParserOption {
	return func(c *parserConfig) {
		c.chunkSize = n
	}
}

// WithParserMaxLineSize sets the longest line accepted before [ErrOutOfMemory].
func WithParserMaxLineSize(n int) ParserOption {
	return func(c *parserConfig) {
		c.maxLineSize = n
	}
}

// WithParserLogger sets the logger used for rejected lines.
func WithParserLogger(l *slog.Logger) ParserOption {
	return func(c *parserConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Parser turns cpuinfo dumps into [Features].
type Parser struct {
	cfg parserConfig
}

// NewParser returns a Parser with the given options applied.
func NewParser(opts ...ParserOption) *Parser {
	cfg := parserConfig{
		table:       DefaultISATable,
		maxLineSize: DefaultMaxLineSize,
		logger:      discardLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Parser{cfg: cfg}
}

// ParseLine dispatches one "key: value" line to its extractor.
// It reports false when the line is malformed, the key is not recognized or
// the extractor rejected the value.
func (p *Parser) ParseLine(f *Features, line string) bool {
	line = strings.TrimLeft(line, " \t\n\v\f\r")
	if line == "" {
		return false
	}
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return false
	}
	keyword := strings.TrimRight(line[:colon], " \t\n\v\f\r")
	ex, ok := lookup(keyword)
	if !ok {
		return false
	}
	value := strings.TrimLeft(line[colon+1:], " \t\n\v\f\r")
	if !ex.extract(f, value) {
		p.cfg.logger.Debug("rejected cpuinfo line", "keyword", keyword, "value", value)
		return false
	}
	return true
}

// ParseFile parses the first record of the cpuinfo dump at path.
// On error the returned record is empty, never nil.
func (p *Parser) ParseFile(path string) (*Features, error) {
	lr, err := OpenLineReader(path, p.cfg.chunkSize)
	if err != nil {
		return NewFeatures(p.cfg.table), err
	}
	defer lr.Close()
	return p.parse(lr)
}

// Parse parses the first record of the cpuinfo dump read from r.
func (p *Parser) Parse(r io.Reader) (*Features, error) {
	return p.parse(NewLineReader(r, p.cfg.chunkSize))
}

// parse stops at the first blank line, so only the first processor block
// of a multi-core dump contributes.
func (p *Parser) parse(lr *LineReader) (*Features, error) {
	lr.SetMaxLineSize(p.cfg.maxLineSize)
	f := NewFeatures(p.cfg.table)
	for {
		err := lr.Next()
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		if err != nil {
			return NewFeatures(p.cfg.table), err
		}
		lr.Trim()
		if lr.Len() == 0 {
			return f, nil
		}
		p.ParseLine(f, lr.Text())
	}
}

// ParseFile parses path with a default [Parser].
func ParseFile(path string) (*Features, error) {
	return NewParser().ParseFile(path)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
