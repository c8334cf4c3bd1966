// Package config loads the instrument and import settings from a JSON file.
// Every field is optional; the Get* methods supply the stock defaults for
// anything the file leaves out.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/banshee-data/gamma.mca/internal/decoder"
	"github.com/banshee-data/gamma.mca/internal/fsutil"
	"github.com/banshee-data/gamma.mca/internal/serialport"
)

// DefaultConfigPath is where the CLI looks for a config file when none is given.
const DefaultConfigPath = "gammamca.json"

// maxFileSize bounds config files read by Load.
const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root configuration. Durations are strings such as "500ms".
type Config struct {
	// Decoder settings
	ChannelCount      *int    `json:"channel_count,omitempty"`
	Terminator        *string `json:"terminator,omitempty"`
	Mode              *string `json:"mode,omitempty"` // "chronological" or "histogram"
	MaxFrameLength    *int    `json:"max_frame_length,omitempty"`
	MaxSnapshotLength *int    `json:"max_snapshot_length,omitempty"`
	MaxSinkSize       *int    `json:"max_sink_size,omitempty"`
	ConsoleMemory     *int    `json:"console_memory,omitempty"`

	// Recording session settings
	RefreshInterval     *string `json:"refresh_interval,omitempty"`
	MetaInterval        *string `json:"meta_interval,omitempty"`
	MaxRecordingTime    *string `json:"max_recording_time,omitempty"`
	MaxRecordingEnabled *bool   `json:"max_recording_enabled,omitempty"`

	Serial *SerialConfig `json:"serial,omitempty"`

	// File import settings
	Delimiter    *string `json:"delimiter,omitempty"`
	ValueColumn  *int    `json:"value_column,omitempty"`
	ImportLayout *string `json:"import_layout,omitempty"` // "histogram" or "events"
	// SchemaSource locates the NPESv1 JSON schema: empty for the embedded
	// copy, an http(s) URL, or a file path.
	SchemaSource *string `json:"schema_source,omitempty"`
}

// SerialConfig holds the serial line settings.
type SerialConfig struct {
	BaudRate *int    `json:"baud_rate,omitempty"`
	DataBits *int    `json:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty"`
}

// Helper functions to create pointers
func ptrInt(v int) *int          { return &v }
func ptrString(v string) *string { return &v }
func ptrBool(v bool) *bool       { return &v }

// Empty returns a Config with all fields unset.
func Empty() *Config {
	return &Config{}
}

// Default returns a Config with every field set to its default.
func Default() *Config {
	return &Config{
		ChannelCount:        ptrInt(decoder.DefaultChannelCount),
		Terminator:          ptrString(decoder.DefaultTerminator),
		Mode:                ptrString(decoder.ModeChronological),
		MaxFrameLength:      ptrInt(decoder.DefaultMaxFrameLength),
		MaxSnapshotLength:   ptrInt(decoder.DefaultMaxSnapshotLength),
		MaxSinkSize:         ptrInt(decoder.DefaultMaxSinkSize),
		ConsoleMemory:       ptrInt(decoder.DefaultConsoleMemory),
		RefreshInterval:     ptrString("1s"),
		MetaInterval:        ptrString("100ms"),
		MaxRecordingTime:    ptrString("30m"),
		MaxRecordingEnabled: ptrBool(false),
		Serial: &SerialConfig{
			BaudRate: ptrInt(9600),
			DataBits: ptrInt(8),
			StopBits: ptrInt(1),
			Parity:   ptrString("none"),
		},
		Delimiter:    ptrString(","),
		ValueColumn:  ptrInt(1),
		ImportLayout: ptrString("histogram"),
		SchemaSource: ptrString(""),
	}
}

// Load reads a Config from a JSON file. The file must have a .json
// extension and be under 1MB. Fields omitted from the file fall back to
// their defaults through the Get* methods.
func Load(fsys fsutil.FileSystem, path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := fsutil.ReadFileLimit(fsys, cleanPath, maxFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the values that are set.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		v    *int
	}{
		{"channel_count", c.ChannelCount},
		{"max_frame_length", c.MaxFrameLength},
		{"max_snapshot_length", c.MaxSnapshotLength},
		{"max_sink_size", c.MaxSinkSize},
	}
	for _, p := range positive {
		if p.v != nil && *p.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, *p.v)
		}
	}

	if c.ConsoleMemory != nil && *c.ConsoleMemory < 0 {
		return fmt.Errorf("console_memory must be non-negative, got %d", *c.ConsoleMemory)
	}
	if c.ValueColumn != nil && *c.ValueColumn < 0 {
		return fmt.Errorf("value_column must be non-negative, got %d", *c.ValueColumn)
	}
	if c.Terminator != nil && *c.Terminator == "" {
		return fmt.Errorf("terminator must not be empty")
	}
	if c.Delimiter != nil && *c.Delimiter == "" {
		return fmt.Errorf("delimiter must not be empty")
	}

	if c.Mode != nil {
		if _, err := decoder.NewMode(*c.Mode, ";", 1, 1); err != nil {
			return err
		}
	}
	if c.ImportLayout != nil {
		switch *c.ImportLayout {
		case "histogram", "events":
		default:
			return fmt.Errorf("import_layout must be \"histogram\" or \"events\", got %q", *c.ImportLayout)
		}
	}

	durations := []struct {
		name string
		v    *string
	}{
		{"refresh_interval", c.RefreshInterval},
		{"meta_interval", c.MetaInterval},
		{"max_recording_time", c.MaxRecordingTime},
	}
	for _, d := range durations {
		if d.v == nil || *d.v == "" {
			continue
		}
		parsed, err := time.ParseDuration(*d.v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.v, err)
		}
		if parsed <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, *d.v)
		}
	}

	if c.Serial != nil {
		if err := c.Serial.Validate(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	}
	return nil
}

// Validate checks the serial line settings that are set.
func (s *SerialConfig) Validate() error {
	if s.BaudRate != nil && *s.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *s.BaudRate)
	}
	_, err := s.portOptions().Normalize()
	return err
}

func (s *SerialConfig) portOptions() serialport.PortOptions {
	return serialport.PortOptions{
		BaudRate: getInt(s.BaudRate, serialport.DefaultBaudRate),
		DataBits: getInt(s.DataBits, 8),
		StopBits: getInt(s.StopBits, 1),
		Parity:   getString(s.Parity, "none"),
	}
}

// PortOptions returns the serial line settings with defaults applied.
func (c *Config) PortOptions() serialport.PortOptions {
	return c.serial().portOptions()
}

// DecoderConfig assembles the decoder settings.
func (c *Config) DecoderConfig() (decoder.Config, error) {
	mode, err := decoder.NewMode(c.GetMode(), c.GetTerminator(), c.GetMaxFrameLength(), c.GetMaxSnapshotLength())
	if err != nil {
		return decoder.Config{}, err
	}
	cfg := decoder.Config{
		ChannelCount:  c.GetChannelCount(),
		Mode:          mode,
		MaxSinkSize:   c.GetMaxSinkSize(),
		ConsoleMemory: c.GetConsoleMemory(),
	}
	return cfg, cfg.Validate()
}

func getInt(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func getString(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func getDuration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil || d <= 0 {
		return def // default on parse error
	}
	return d
}

// GetChannelCount returns channel_count or 4096.
func (c *Config) GetChannelCount() int { return getInt(c.ChannelCount, decoder.DefaultChannelCount) }

// GetTerminator returns terminator or ";".
func (c *Config) GetTerminator() string { return getString(c.Terminator, decoder.DefaultTerminator) }

// GetMode returns mode or "chronological".
func (c *Config) GetMode() string { return getString(c.Mode, decoder.ModeChronological) }

// GetMaxFrameLength returns max_frame_length or 20.
func (c *Config) GetMaxFrameLength() int {
	return getInt(c.MaxFrameLength, decoder.DefaultMaxFrameLength)
}

// GetMaxSnapshotLength returns max_snapshot_length or 1310720.
func (c *Config) GetMaxSnapshotLength() int {
	return getInt(c.MaxSnapshotLength, decoder.DefaultMaxSnapshotLength)
}

// GetMaxSinkSize returns max_sink_size or 100000.
func (c *Config) GetMaxSinkSize() int { return getInt(c.MaxSinkSize, decoder.DefaultMaxSinkSize) }

// GetConsoleMemory returns console_memory or 100000.
func (c *Config) GetConsoleMemory() int {
	return getInt(c.ConsoleMemory, decoder.DefaultConsoleMemory)
}

// GetRefreshInterval returns refresh_interval or 1s.
func (c *Config) GetRefreshInterval() time.Duration {
	return getDuration(c.RefreshInterval, time.Second)
}

// GetMetaInterval returns meta_interval or 100ms.
func (c *Config) GetMetaInterval() time.Duration {
	return getDuration(c.MetaInterval, 100*time.Millisecond)
}

// GetMaxRecordingTime returns max_recording_time or 30m.
func (c *Config) GetMaxRecordingTime() time.Duration {
	return getDuration(c.MaxRecordingTime, 30*time.Minute)
}

// GetMaxRecordingEnabled returns max_recording_enabled or false.
func (c *Config) GetMaxRecordingEnabled() bool {
	if c.MaxRecordingEnabled == nil {
		return false // default: recordings run until stopped
	}
	return *c.MaxRecordingEnabled
}

// GetDelimiter returns delimiter or ",".
func (c *Config) GetDelimiter() string { return getString(c.Delimiter, ",") }

// GetValueColumn returns value_column or 1.
func (c *Config) GetValueColumn() int { return getInt(c.ValueColumn, 1) }

// GetImportLayout returns import_layout or "histogram".
func (c *Config) GetImportLayout() string { return getString(c.ImportLayout, "histogram") }

// GetSchemaSource returns schema_source, empty meaning the embedded schema.
func (c *Config) GetSchemaSource() string { return getString(c.SchemaSource, "") }

func (c *Config) serial() *SerialConfig {
	if c.Serial == nil {
		return &SerialConfig{}
	}
	return c.Serial
}

// GetBaudRate returns serial.baud_rate or 9600.
func (c *Config) GetBaudRate() int { return getInt(c.serial().BaudRate, serialport.DefaultBaudRate) }

// GetDataBits returns serial.data_bits or 8.
func (c *Config) GetDataBits() int { return getInt(c.serial().DataBits, 8) }

// GetStopBits returns serial.stop_bits or 1.
func (c *Config) GetStopBits() int { return getInt(c.serial().StopBits, 1) }

// GetParity returns serial.parity or "none".
func (c *Config) GetParity() string { return getString(c.serial().Parity, "none") }
