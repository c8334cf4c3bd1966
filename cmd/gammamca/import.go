package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/banshee-data/gamma.mca/internal/calibration"
	"github.com/banshee-data/gamma.mca/internal/importer"
	"github.com/banshee-data/gamma.mca/internal/spectrum"
)

func (a *app) importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import spectrum files and summarise them.",
		Long: `Import reads delimited text (.csv, .tka, .txt), device XML (.xml) or
NPESv1 JSON (.json) spectrum files and prints a summary of each.

With --out the data spectrum of the last successfully imported file is
written as CSV, one count per line. With --calibration-out its energy
calibration is exported as a calibration JSON object.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runImport,
	}
	f := cmd.Flags()
	f.String("out", "", "write the imported data spectrum as CSV")
	f.String("calibration-out", "", "write the imported calibration as JSON")
	return cmd
}

type importedFile struct {
	path   string
	format importer.Format
	result importer.Result
}

func (a *app) runImport(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	calOut, _ := cmd.Flags().GetString("calibration-out")

	fi, err := a.fileImporter(a.cfg)
	if err != nil {
		return err
	}

	warn := color.New(color.FgYellow).SprintFunc()
	var imported []importedFile
	for _, path := range args {
		format, _ := importer.DetectFormat(path)
		res, err := fi.ImportFile(cmd.Context(), path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", warn("skipped"), path, err)
			continue
		}
		if len(res.Data) > 0 && len(res.Background) > 0 && len(res.Data) != len(res.Background) {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: data has %d channels, background %d\n",
				warn("warning"), path, len(res.Data), len(res.Background))
		}
		imported = append(imported, importedFile{path: path, format: format, result: res})
	}
	if len(imported) == 0 {
		return errors.New("no file could be imported")
	}

	if err := printImportTable(cmd.OutOrStdout(), imported); err != nil {
		return err
	}

	last := imported[len(imported)-1]
	if out != "" {
		if err := a.writeHistogramCSV(out, last.result.Data); err != nil {
			return err
		}
	}
	if calOut != "" {
		if err := a.writeCalibration(calOut, last.result); err != nil {
			return err
		}
	}
	return nil
}

func printImportTable(w io.Writer, files []importedFile) error {
	locked := color.New(color.FgGreen).SprintFunc()

	table := tablewriter.NewWriter(w)
	table.Header([]string{"File", "Format", "Channels", "Counts", "Background", "Time", "Calibration", "Sample"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	var rows [][]string
	for _, f := range files {
		r := f.result
		cal := "-"
		if r.Calibration != nil && r.Calibration.NonZero() > 0 {
			cal = fmt.Sprintf("%g, %g, %g", r.Calibration.C1, r.Calibration.C2, r.Calibration.C3)
			if r.CalibrationLocked() {
				cal = locked(cal)
			}
		}
		bg := "-"
		if len(r.Background) > 0 {
			bg = fmt.Sprintf("%.0f", r.Background.Total())
		}
		elapsed := "-"
		if r.Meta.DataTime > 0 {
			elapsed = r.Meta.DataTime.Truncate(time.Millisecond).String()
		}
		sample := r.Meta.Name
		if sample == "" {
			sample = "-"
		}
		rows = append(rows, []string{
			filepath.Base(f.path),
			string(f.format),
			fmt.Sprint(len(r.Data)),
			fmt.Sprintf("%.0f", r.Data.Total()),
			bg,
			elapsed,
			cal,
			sample,
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func (a *app) writeHistogramCSV(path string, h spectrum.Histogram) error {
	f, err := a.fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := spectrum.WriteCSV(f, h); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func (a *app) writeCalibration(path string, r importer.Result) error {
	if r.Calibration == nil {
		return fmt.Errorf("no calibration in imported file")
	}
	data, err := calibration.Export(calibration.Calibration{
		Coeff:    *r.Calibration,
		Imported: r.CalibrationLocked(),
	})
	if err != nil {
		return err
	}
	if err := a.fsys.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
