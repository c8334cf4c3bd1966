package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/gamma.mca/internal/fsutil"
	"github.com/banshee-data/gamma.mca/internal/monitoring"
)

// MaxFileSize bounds the size of an imported file.
const MaxFileSize = 64 << 20

// Format identifies an import file format.
type Format string

const (
	FormatDelimited Format = "delimited"
	FormatXML       Format = "xml"
	FormatNPES      Format = "npes"
)

// DetectFormat maps a file name to its import format by extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tka", ".txt", ".dat":
		return FormatDelimited, nil
	case ".xml":
		return FormatXML, nil
	case ".json":
		return FormatNPES, nil
	default:
		return "", fmt.Errorf("%w: unknown file extension %q", ErrFormat, filepath.Ext(path))
	}
}

// FileImporter reads spectrum files of any supported format.
type FileImporter struct {
	FS        fsutil.FileSystem
	Delimited DelimitedOptions
	NPES      *NPESImporter
}

// NewFileImporter returns an importer reading from fsys and validating NPES
// documents against source.
func NewFileImporter(fsys fsutil.FileSystem, opts DelimitedOptions, source SchemaSource) *FileImporter {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &FileImporter{FS: fsys, Delimited: opts, NPES: NewNPESImporter(source)}
}

// ImportFile reads path and parses it according to its extension.
func (fi *FileImporter) ImportFile(ctx context.Context, path string) (Result, error) {
	format, err := DetectFormat(path)
	if err != nil {
		monitoring.Imports.WithLabelValues("unknown", "error").Inc()
		return Result{}, err
	}

	data, err := fsutil.ReadFileLimit(fi.FS, path, MaxFileSize)
	if err != nil {
		monitoring.Imports.WithLabelValues(string(format), "error").Inc()
		return Result{}, fmt.Errorf("read %s: %w", path, err)
	}

	result, err := fi.Import(ctx, format, string(data))
	if err != nil {
		monitoring.Imports.WithLabelValues(string(format), "error").Inc()
		monitoring.Warnf("import %s: %v", path, err)
		return result, err
	}
	monitoring.Imports.WithLabelValues(string(format), "ok").Inc()
	return result, nil
}

// Import parses text as format.
func (fi *FileImporter) Import(ctx context.Context, format Format, text string) (Result, error) {
	switch format {
	case FormatDelimited:
		h, err := ImportDelimited(text, fi.Delimited)
		if err != nil {
			return Result{}, err
		}
		return Result{Data: h}, nil
	case FormatXML:
		return ImportXML(text)
	case FormatNPES:
		npes := fi.NPES
		if npes == nil {
			npes = NewNPESImporter(nil)
		}
		doc, err := npes.Import(ctx, text)
		if err != nil {
			return Result{}, err
		}
		return doc.Result(), nil
	default:
		return Result{}, fmt.Errorf("%w: unknown format %q", ErrFormat, format)
	}
}
