package config

import (
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/gamma.mca/internal/decoder"
	"github.com/banshee-data/gamma.mca/internal/fsutil"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.ChannelCount == nil || *cfg.ChannelCount != 4096 {
		t.Errorf("Expected ChannelCount 4096, got %v", cfg.ChannelCount)
	}
	if cfg.Terminator == nil || *cfg.Terminator != ";" {
		t.Errorf("Expected Terminator ';', got %v", cfg.Terminator)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}

	if got := cfg.GetMaxSnapshotLength(); got != 1310720 {
		t.Errorf("GetMaxSnapshotLength() = %d, want 1310720", got)
	}
	if got := cfg.GetRefreshInterval(); got != time.Second {
		t.Errorf("GetRefreshInterval() = %v, want 1s", got)
	}
	if got := cfg.GetMaxRecordingTime(); got != 30*time.Minute {
		t.Errorf("GetMaxRecordingTime() = %v, want 30m", got)
	}
	if got := cfg.GetBaudRate(); got != 9600 {
		t.Errorf("GetBaudRate() = %d, want 9600", got)
	}
}

func TestEmptyConfigGetters(t *testing.T) {
	cfg := Empty()

	if got := cfg.GetChannelCount(); got != 4096 {
		t.Errorf("GetChannelCount() = %d, want 4096", got)
	}
	if got := cfg.GetMode(); got != decoder.ModeChronological {
		t.Errorf("GetMode() = %q", got)
	}
	if got := cfg.GetMetaInterval(); got != 100*time.Millisecond {
		t.Errorf("GetMetaInterval() = %v, want 100ms", got)
	}
	if cfg.GetMaxRecordingEnabled() {
		t.Error("GetMaxRecordingEnabled() should default to false")
	}
	if got := cfg.GetDelimiter(); got != "," {
		t.Errorf("GetDelimiter() = %q", got)
	}
	if got := cfg.GetValueColumn(); got != 1 {
		t.Errorf("GetValueColumn() = %d", got)
	}
	if got := cfg.GetParity(); got != "none" {
		t.Errorf("GetParity() = %q", got)
	}
	if got := cfg.GetSchemaSource(); got != "" {
		t.Errorf("GetSchemaSource() = %q", got)
	}
}

func TestGetDurationFallsBackOnBadValue(t *testing.T) {
	cfg := &Config{RefreshInterval: ptrString("soon")}
	if got := cfg.GetRefreshInterval(); got != time.Second {
		t.Errorf("GetRefreshInterval() = %v, want default 1s", got)
	}
}

func TestLoad(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("/etc/gammamca.json", []byte(`{
  "channel_count": 1024,
  "mode": "histogram",
  "terminator": " ",
  "refresh_interval": "500ms",
  "max_recording_enabled": true,
  "serial": {"baud_rate": 115200}
}`), 0644)

	cfg, err := Load(fsys, "/etc/gammamca.json")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.GetChannelCount() != 1024 {
		t.Errorf("channel count = %d", cfg.GetChannelCount())
	}
	if cfg.GetRefreshInterval() != 500*time.Millisecond {
		t.Errorf("refresh = %v", cfg.GetRefreshInterval())
	}
	if !cfg.GetMaxRecordingEnabled() {
		t.Error("max recording should be enabled")
	}
	if cfg.GetBaudRate() != 115200 || cfg.GetDataBits() != 8 {
		t.Errorf("serial = %d/%d", cfg.GetBaudRate(), cfg.GetDataBits())
	}

	dc, err := cfg.DecoderConfig()
	if err != nil {
		t.Fatalf("DecoderConfig failed: %v", err)
	}
	want := decoder.HistogramSnapshot{ValueTerminator: " ", MaxLineLength: 1310720}
	if dc.Mode != want {
		t.Errorf("mode = %#v, want %#v", dc.Mode, want)
	}
	if dc.ChannelCount != 1024 || dc.MaxSinkSize != 100000 {
		t.Errorf("decoder config = %+v", dc)
	}
}

func TestLoadErrors(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("/bad.json", []byte(`{"channel_count": "many"`), 0644)
	fsys.WriteFile("/invalid.json", []byte(`{"channel_count": 0}`), 0644)
	fsys.WriteFile("/config.yaml", []byte(`channel_count: 1`), 0644)
	fsys.WriteFile("/huge.json", []byte(strings.Repeat(" ", maxFileSize+1)), 0644)

	tests := []struct {
		name string
		path string
		want string
	}{
		{"missing", "/nope.json", "failed to read"},
		{"bad json", "/bad.json", "failed to parse"},
		{"invalid value", "/invalid.json", "invalid configuration"},
		{"wrong extension", "/config.yaml", ".json extension"},
		{"too large", "/huge.json", "too large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(fsys, tt.path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load(%s) error = %v, want containing %q", tt.path, err, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{"empty config is valid", &Config{}, false},
		{"negative channel count", &Config{ChannelCount: ptrInt(-1)}, true},
		{"negative console memory", &Config{ConsoleMemory: ptrInt(-5)}, true},
		{"zero console memory", &Config{ConsoleMemory: ptrInt(0)}, false},
		{"unknown mode", &Config{Mode: ptrString("spectral")}, true},
		{"short mode alias", &Config{Mode: ptrString("hist")}, false},
		{"empty terminator", &Config{Terminator: ptrString("")}, true},
		{"bad refresh interval", &Config{RefreshInterval: ptrString("fast")}, true},
		{"negative meta interval", &Config{MetaInterval: ptrString("-1s")}, true},
		{"bad layout", &Config{ImportLayout: ptrString("columns")}, true},
		{"bad parity", &Config{Serial: &SerialConfig{Parity: ptrString("maybe")}}, true},
		{"bad stop bits", &Config{Serial: &SerialConfig{StopBits: ptrInt(3)}}, true},
		{"bad data bits", &Config{Serial: &SerialConfig{DataBits: ptrInt(9)}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPortOptions(t *testing.T) {
	cfg := &Config{Serial: &SerialConfig{BaudRate: ptrInt(19200), Parity: ptrString("even")}}
	opts := cfg.PortOptions()
	if opts.BaudRate != 19200 || opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "even" {
		t.Errorf("PortOptions() = %+v", opts)
	}

	if got := Empty().PortOptions().BaudRate; got != 9600 {
		t.Errorf("default baud = %d, want 9600", got)
	}
}
