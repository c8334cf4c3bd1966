package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/gamma.mca/internal/spectrum"
)

// Layout selects how delimited text is read.
type Layout int

const (
	// LayoutHistogram reads one channel count per line.
	LayoutHistogram Layout = iota
	// LayoutEvents reads one pulse height per delimited token.
	LayoutEvents
)

func (l Layout) String() string {
	if l == LayoutEvents {
		return "events"
	}
	return "histogram"
}

// ParseLayout parses "histogram" or "events".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "histogram", "hist", "":
		return LayoutHistogram, nil
	case "events", "chronological", "chron":
		return LayoutEvents, nil
	default:
		return 0, fmt.Errorf("unknown delimited layout %q", s)
	}
}

// DelimitedOptions controls ImportDelimited.
type DelimitedOptions struct {
	// Delimiter separates fields; "," when empty.
	Delimiter string
	// ValueColumn is the zero-based field holding the count in histogram
	// layout.
	ValueColumn int
	Layout      Layout
	// ChannelCount sizes the histogram built from events; 4096 when unset.
	ChannelCount int
}

func (o DelimitedOptions) normalize() DelimitedOptions {
	if o.Delimiter == "" {
		o.Delimiter = ","
	}
	if o.ChannelCount <= 0 {
		o.ChannelCount = 4096
	}
	if o.ValueColumn < 0 {
		o.ValueColumn = 0
	}
	return o
}

// ImportDelimited parses delimited text into a histogram. Records whose
// first field is not a number, such as headers, are skipped. A record with
// a single field switches the value column to 0 for the whole file.
func ImportDelimited(text string, opts DelimitedOptions) (spectrum.Histogram, error) {
	opts = opts.normalize()
	switch opts.Layout {
	case LayoutEvents:
		return importEvents(text, opts)
	default:
		return importHistogram(text, opts)
	}
}

type recordFilter struct {
	delimiter string
	column    int
}

// accept reports whether record holds a numeric first field and enough
// fields for the value column.
func (f *recordFilter) accept(record string) bool {
	fields := strings.Split(record, f.delimiter)
	if _, err := parseNumber(fields[0]); err != nil {
		return false
	}
	if len(fields) == 1 {
		f.column = 0
	}
	return len(fields) > f.column
}

func (f *recordFilter) value(record string) float64 {
	fields := strings.Split(record, f.delimiter)
	v, err := parseNumber(fields[f.column])
	if err != nil {
		return 0
	}
	return v
}

func importHistogram(text string, opts DelimitedOptions) (spectrum.Histogram, error) {
	filter := recordFilter{delimiter: opts.Delimiter, column: opts.ValueColumn}

	var accepted []string
	for _, line := range strings.Split(text, "\n") {
		if filter.accept(line) {
			accepted = append(accepted, line)
		}
	}
	if len(accepted) == 0 {
		return spectrum.Histogram{}, fmt.Errorf("%w: no numeric records", ErrFormat)
	}

	// The value column is settled only once every record has been seen.
	h := make(spectrum.Histogram, len(accepted))
	for i, line := range accepted {
		h[i] = filter.value(line)
	}
	return h, nil
}

func importEvents(text string, opts DelimitedOptions) (spectrum.Histogram, error) {
	h := spectrum.NewHistogram(opts.ChannelCount)
	found := false
	for _, token := range strings.Split(text, opts.Delimiter) {
		// Event files are usually wrapped over several lines.
		for _, field := range strings.FieldsFunc(token, isLineBreak) {
			v, err := parseNumber(field)
			if err != nil {
				continue
			}
			found = true
			ch := int(math.Round(v))
			if ch < 0 || ch >= len(h) {
				continue
			}
			h[ch]++
		}
	}
	if !found {
		return spectrum.Histogram{}, fmt.Errorf("%w: no numeric events", ErrFormat)
	}
	return h, nil
}

func isLineBreak(r rune) bool {
	return r == '\n' || r == '\r'
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}
