package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/sync/singleflight"

	"github.com/banshee-data/gamma.mca/internal/calibration"
	"github.com/banshee-data/gamma.mca/internal/monitoring"
	"github.com/banshee-data/gamma.mca/internal/spectrum"
)

// NPES is a validated NPESv1 document.
type NPES struct {
	SchemaVersion string          `json:"schemaVersion"`
	DeviceData    *NPESDeviceData `json:"deviceData,omitempty"`
	SampleInfo    *NPESSampleInfo `json:"sampleInfo,omitempty"`
	ResultData    NPESResultData  `json:"resultData"`
}

type NPESDeviceData struct {
	DeviceName   string `json:"deviceName,omitempty"`
	SoftwareName string `json:"softwareName"`
}

type NPESSampleInfo struct {
	Name     string   `json:"name,omitempty"`
	Location string   `json:"location,omitempty"`
	Time     string   `json:"time,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
	Note     string   `json:"note,omitempty"`
}

type NPESResultData struct {
	StartTime                string        `json:"startTime,omitempty"`
	EndTime                  string        `json:"endTime,omitempty"`
	EnergySpectrum           *NPESSpectrum `json:"energySpectrum,omitempty"`
	BackgroundEnergySpectrum *NPESSpectrum `json:"backgroundEnergySpectrum,omitempty"`
}

type NPESSpectrum struct {
	NumberOfChannels  float64          `json:"numberOfChannels"`
	ValidPulseCount   *float64         `json:"validPulseCount,omitempty"`
	MeasurementTime   *float64         `json:"measurementTime,omitempty"`
	EnergyCalibration *NPESCalibration `json:"energyCalibration,omitempty"`
	Spectrum          []float64        `json:"spectrum"`
}

// NPESCalibration lists polynomial coefficients lowest order first.
type NPESCalibration struct {
	PolynomialOrder int       `json:"polynomialOrder"`
	Coefficients    []float64 `json:"coefficients"`
}

// Result converts the document into an import Result. Weight and volume are
// taken as already in grams and milliliters.
func (n *NPES) Result() Result {
	var r Result
	rd := n.ResultData
	if es := rd.EnergySpectrum; es != nil {
		r.Data = spectrum.Histogram(es.Spectrum).Clone()
		r.Meta.DataTime = npesTime(es.MeasurementTime)
		r.Calibration = npesCoefficients(es.EnergyCalibration)
	}
	if bg := rd.BackgroundEnergySpectrum; bg != nil {
		r.Background = spectrum.Histogram(bg.Spectrum).Clone()
		r.Meta.BackgroundTime = npesTime(bg.MeasurementTime)
	}
	r.Meta.StartTime = rd.StartTime
	r.Meta.EndTime = rd.EndTime
	if d := n.DeviceData; d != nil {
		r.Meta.DeviceName = d.DeviceName
	}
	if s := n.SampleInfo; s != nil {
		r.Meta.Name = s.Name
		r.Meta.Location = s.Location
		r.Meta.Time = s.Time
		r.Meta.Notes = s.Note
		if s.Weight != nil && *s.Weight > 0 {
			r.Meta.Weight = *s.Weight
		}
		if s.Volume != nil && *s.Volume > 0 {
			r.Meta.Volume = *s.Volume
		}
	}
	return r
}

func npesTime(v *float64) time.Duration {
	if v == nil || *v <= 0 {
		return seconds(1)
	}
	return seconds(*v)
}

func npesCoefficients(cal *NPESCalibration) *calibration.Coefficients {
	if cal == nil {
		return nil
	}
	var c calibration.Coefficients
	slots := []*float64{&c.C3, &c.C2, &c.C1}
	for i, v := range cal.Coefficients {
		if i >= len(slots) {
			break
		}
		*slots[i] = v
	}
	return &c
}

// NPESImporter validates NPESv1 documents. The schema is obtained from its
// source on first use and reused for the life of the importer; concurrent
// first uses share a single fetch, and a failed fetch is retried on the
// next import.
type NPESImporter struct {
	source SchemaSource

	group  singleflight.Group
	mu     sync.RWMutex
	schema *jsonschema.Schema
}

// NewNPESImporter returns an importer validating against source.
func NewNPESImporter(source SchemaSource) *NPESImporter {
	if source == nil {
		source = EmbeddedSchema{}
	}
	return &NPESImporter{source: source}
}

// Import parses and validates text. Invalid JSON, an unavailable schema or
// a schema violation return nil and an error wrapping ErrFormat.
func (im *NPESImporter) Import(ctx context.Context, text string) (*NPES, error) {
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("%w: json: %v", ErrFormat, err)
	}

	sch, err := im.validator(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: npes schema unavailable: %v", ErrFormat, err)
	}
	if err := sch.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: npes validation: %v", ErrFormat, err)
	}

	var doc NPES
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("%w: npes decode: %v", ErrFormat, err)
	}
	return &doc, nil
}

func (im *NPESImporter) validator(ctx context.Context) (*jsonschema.Schema, error) {
	im.mu.RLock()
	sch := im.schema
	im.mu.RUnlock()
	if sch != nil {
		return sch, nil
	}

	v, err, _ := im.group.Do("schema", func() (interface{}, error) {
		im.mu.RLock()
		cached := im.schema
		im.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		data, err := im.source.FetchSchema(ctx)
		if err != nil {
			monitoring.Logf("npes: failed to load schema from %s: %v", im.source, err)
			return nil, err
		}
		compiled, err := compileSchema(data)
		if err != nil {
			return nil, err
		}

		im.mu.Lock()
		im.schema = compiled
		im.mu.Unlock()
		return compiled, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*jsonschema.Schema), nil
}

const schemaURL = "https://gamma.mca/schema/npes-1.schema.json"

func compileSchema(data []byte) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema is not a JSON object")
	}
	// The meta-schema URI is not resolvable offline; validate with the
	// compiler's default draft instead.
	delete(obj, "$schema")

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, obj); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return sch, nil
}
