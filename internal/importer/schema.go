package importer

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/banshee-data/gamma.mca/internal/fsutil"
	"github.com/banshee-data/gamma.mca/internal/httputil"
)

//go:embed schema/npes-1.schema.json
var embeddedSchema []byte

// maxSchemaSize bounds schema documents read from files or fetched.
const maxSchemaSize = 1 << 20

// SchemaSource supplies the NPESv1 JSON schema document.
type SchemaSource interface {
	FetchSchema(ctx context.Context) ([]byte, error)
	String() string
}

// EmbeddedSchema serves the schema compiled into the binary.
type EmbeddedSchema struct{}

func (EmbeddedSchema) FetchSchema(context.Context) ([]byte, error) {
	return embeddedSchema, nil
}

func (EmbeddedSchema) String() string { return "embedded" }

// FileSchema reads the schema from a file.
type FileSchema struct {
	FS   fsutil.FileSystem
	Path string
}

func (s FileSchema) FetchSchema(context.Context) ([]byte, error) {
	return fsutil.ReadFileLimit(s.FS, s.Path, maxSchemaSize)
}

func (s FileSchema) String() string { return s.Path }

// HTTPSchema fetches the schema over HTTP.
type HTTPSchema struct {
	Client httputil.HTTPClient
	URL    string
}

func (s HTTPSchema) FetchSchema(ctx context.Context) ([]byte, error) {
	return httputil.FetchBytes(ctx, s.Client, s.URL, maxSchemaSize)
}

func (s HTTPSchema) String() string { return s.URL }

// NewSchemaSource picks a source for location: the embedded schema when
// empty, HTTP for http(s) URLs, otherwise a file path.
func NewSchemaSource(location string, fsys fsutil.FileSystem, client httputil.HTTPClient) (SchemaSource, error) {
	switch {
	case location == "":
		return EmbeddedSchema{}, nil
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		if client == nil {
			return nil, fmt.Errorf("schema source %s needs an HTTP client", location)
		}
		return HTTPSchema{Client: client, URL: location}, nil
	default:
		if fsys == nil {
			fsys = fsutil.OSFileSystem{}
		}
		return FileSchema{FS: fsys, Path: location}, nil
	}
}
