package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/gamma.mca/internal/config"
	"github.com/banshee-data/gamma.mca/internal/fsutil"
	"github.com/banshee-data/gamma.mca/internal/httputil"
	"github.com/banshee-data/gamma.mca/internal/importer"
	"github.com/banshee-data/gamma.mca/internal/monitoring"
	"github.com/banshee-data/gamma.mca/internal/serialport"
	"github.com/banshee-data/gamma.mca/internal/session"
	"github.com/banshee-data/gamma.mca/internal/timeutil"
	"github.com/banshee-data/gamma.mca/internal/version"
)

// app carries the dependencies shared by all commands. Tests swap the
// filesystem, serial opener and clock.
type app struct {
	v          *viper.Viper
	fsys       fsutil.FileSystem
	open       serialport.Opener
	listPorts  func() ([]string, error)
	httpClient httputil.HTTPClient
	clock      timeutil.Clock

	cfg *config.Config
}

func newApp() *app {
	return &app{
		v:          viper.New(),
		fsys:       fsutil.OSFileSystem{},
		open:       serialport.SerialOpener,
		listPorts:  serialport.ListPorts,
		httpClient: httputil.NewStandardClient(&http.Client{Timeout: 30 * time.Second}),
		clock:      timeutil.RealClock{},
	}
}

// newRootCmd builds the command tree.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "gammamca",
		Short: "Record and import gamma spectra from a serial MCA.",
		Long: `gammamca reads pulse-height events or histogram snapshots from a serial
multichannel analyser, accumulates them into a spectrum with count-rate
statistics, and serves the live state over HTTP. It also imports CSV, XML
and NPESv1 JSON spectrum files.`,
		Version:            version.Version,
		SilenceErrors:      true,
		SilenceUsage:       true,
		DisableSuggestions: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.initConfig()
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default "+config.DefaultConfigPath+" when present)")
	pf.Bool("debug", false, "enable debug logging")
	pf.Int("channel-count", 0, "number of spectrum channels")
	pf.String("mode", "", "decoder mode: chronological or histogram")
	pf.String("terminator", "", "event or value terminator")
	pf.Int("baud-rate", 0, "serial baud rate")
	pf.String("parity", "", "serial parity: none, even, odd, mark or space")
	pf.Duration("max-time", 0, "stop recording after this long (0 disables the limit)")
	pf.String("delimiter", "", "field delimiter for delimited imports")
	pf.Int("value-column", -1, "zero-based value column for delimited imports")
	pf.String("layout", "", "delimited import layout: histogram or events")
	pf.String("schema", "", "NPESv1 schema location: file path or http(s) URL")
	_ = a.v.BindPFlags(pf)

	root.AddCommand(
		a.recordCmd(),
		a.importCmd(),
		a.portsCmd(),
		a.sendCmd(),
		a.versionCmd(),
	)
	return root
}

// initConfig loads the config file and layers GAMMAMCA_* environment
// variables and flags over it.
func (a *app) initConfig() error {
	a.v.SetEnvPrefix("GAMMAMCA")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	monitoring.SetDebug(a.v.GetBool("debug"))

	cfg := config.Empty()
	path := a.v.GetString("config")
	if path == "" && a.fsys.Exists(config.DefaultConfigPath) {
		path = config.DefaultConfigPath
	}
	if path != "" {
		loaded, err := config.Load(a.fsys, path)
		if err != nil {
			return err
		}
		cfg = loaded
		monitoring.Debugf("loaded config from %s", path)
	}

	applyOverrides(cfg, a.v)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg
	return nil
}

func applyOverrides(cfg *config.Config, v *viper.Viper) {
	setInt := func(key string, dst **int) {
		if v.IsSet(key) {
			n := v.GetInt(key)
			*dst = &n
		}
	}
	setString := func(key string, dst **string) {
		if v.IsSet(key) {
			s := v.GetString(key)
			*dst = &s
		}
	}

	setInt("channel-count", &cfg.ChannelCount)
	setString("mode", &cfg.Mode)
	setString("terminator", &cfg.Terminator)
	setString("delimiter", &cfg.Delimiter)
	setInt("value-column", &cfg.ValueColumn)
	setString("layout", &cfg.ImportLayout)
	setString("schema", &cfg.SchemaSource)

	if v.IsSet("baud-rate") || v.IsSet("parity") {
		if cfg.Serial == nil {
			cfg.Serial = &config.SerialConfig{}
		}
		setInt("baud-rate", &cfg.Serial.BaudRate)
		setString("parity", &cfg.Serial.Parity)
	}

	if v.IsSet("max-time") {
		d := v.GetDuration("max-time")
		enabled := d > 0
		cfg.MaxRecordingEnabled = &enabled
		if enabled {
			s := d.String()
			cfg.MaxRecordingTime = &s
		}
	}
}

func sessionOptions(cfg *config.Config) session.Options {
	return session.Options{
		RefreshInterval:     cfg.GetRefreshInterval(),
		MetaInterval:        cfg.GetMetaInterval(),
		MaxRecordingTime:    cfg.GetMaxRecordingTime(),
		MaxRecordingEnabled: cfg.GetMaxRecordingEnabled(),
	}
}

func (a *app) fileImporter(cfg *config.Config) (*importer.FileImporter, error) {
	layout, err := importer.ParseLayout(cfg.GetImportLayout())
	if err != nil {
		return nil, err
	}
	source, err := importer.NewSchemaSource(cfg.GetSchemaSource(), a.fsys, a.httpClient)
	if err != nil {
		return nil, err
	}
	opts := importer.DelimitedOptions{
		Delimiter:    cfg.GetDelimiter(),
		ValueColumn:  cfg.GetValueColumn(),
		Layout:       layout,
		ChannelCount: cfg.GetChannelCount(),
	}
	return importer.NewFileImporter(a.fsys, opts, source), nil
}
