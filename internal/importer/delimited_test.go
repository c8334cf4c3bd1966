package importer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gamma.mca/internal/spectrum"
)

func TestImportDelimited_OneCountPerLine(t *testing.T) {
	h, err := ImportDelimited("10\n20\n5", DelimitedOptions{})
	require.NoError(t, err)
	assert.Equal(t, spectrum.Histogram{10, 20, 5}, h)
}

func TestImportDelimited_SkipsHeaderAndUsesValueColumn(t *testing.T) {
	text := "channel,count\r\n0,3\r\n1,4\r\n2,9\r\n"
	h, err := ImportDelimited(text, DelimitedOptions{ValueColumn: 1})
	require.NoError(t, err)
	assert.Equal(t, spectrum.Histogram{3, 4, 9}, h)
}

func TestImportDelimited_SingleFieldRecordSwitchesToFirstColumn(t *testing.T) {
	// A single-field record anywhere in the file moves the value column to 0
	// for every record, including those read before it.
	text := "1;50\n2;60\n7"
	h, err := ImportDelimited(text, DelimitedOptions{Delimiter: ";", ValueColumn: 1})
	require.NoError(t, err)
	assert.Equal(t, spectrum.Histogram{1, 2, 7}, h)
}

func TestImportDelimited_ShortRecordsSkipped(t *testing.T) {
	text := "0,1,100\n1,2\n2,3,300"
	h, err := ImportDelimited(text, DelimitedOptions{ValueColumn: 2})
	require.NoError(t, err)
	assert.Equal(t, spectrum.Histogram{100, 300}, h)
}

func TestImportDelimited_UnparsableValueIsZero(t *testing.T) {
	h, err := ImportDelimited("0,5\n1,x\n2,7", DelimitedOptions{ValueColumn: 1})
	require.NoError(t, err)
	assert.Equal(t, spectrum.Histogram{5, 0, 7}, h)
}

func TestImportDelimited_NoNumericRecords(t *testing.T) {
	_, err := ImportDelimited("channel,count\nfoo,bar\n", DelimitedOptions{ValueColumn: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestImportDelimited_Events(t *testing.T) {
	text := "1,2,2,\n3,\r\n2.6,9,-1,junk"
	h, err := ImportDelimited(text, DelimitedOptions{Layout: LayoutEvents, ChannelCount: 4})
	require.NoError(t, err)
	// 2.6 rounds to channel 3; 9 and -1 are outside the histogram.
	assert.Equal(t, spectrum.Histogram{0, 1, 2, 2}, h)
}

func TestImportDelimited_EventsNeedsNumbers(t *testing.T) {
	_, err := ImportDelimited("a,b,c", DelimitedOptions{Layout: LayoutEvents})
	assert.ErrorIs(t, err, ErrFormat)
}

func TestParseLayout(t *testing.T) {
	tests := []struct {
		in      string
		want    Layout
		wantErr bool
	}{
		{"", LayoutHistogram, false},
		{"histogram", LayoutHistogram, false},
		{"Events", LayoutEvents, false},
		{"chron", LayoutEvents, false},
		{"columns", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLayout(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.String(), got.String())
		})
	}
}
