package importer

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/banshee-data/gamma.mca/internal/calibration"
	"github.com/banshee-data/gamma.mca/internal/spectrum"
	"github.com/banshee-data/gamma.mca/internal/units"
)

// invalidDataPoint marks a DataPoint the file left empty or unreadable.
const invalidDataPoint = -1

// element is a parsed XML element. Lookups match local names anywhere below
// the element, in document order.
type element struct {
	name     string
	text     strings.Builder
	children []*element
}

func parseElements(r io.Reader) (*element, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel

	root := &element{}
	stack := []*element{root}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local}
			top.children = append(top.children, el)
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			top.text.Write(t)
		}
	}
	if len(root.children) == 0 {
		return nil, errors.New("no root element")
	}
	return root, nil
}

// find returns the first descendant named name, or nil.
func (e *element) find(name string) *element {
	if e == nil {
		return nil
	}
	for _, c := range e.children {
		if c.name == name {
			return c
		}
		if found := c.find(name); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns every descendant named name.
func (e *element) findAll(name string) []*element {
	if e == nil {
		return nil
	}
	var out []*element
	for _, c := range e.children {
		if c.name == name {
			out = append(out, c)
		}
		out = append(out, c.findAll(name)...)
	}
	return out
}

// content returns the trimmed text of e and its descendants.
func (e *element) content() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	e.collect(&b)
	return strings.TrimSpace(b.String())
}

func (e *element) collect(b *strings.Builder) {
	b.WriteString(e.text.String())
	for _, c := range e.children {
		c.collect(b)
	}
}

func (e *element) number(def float64) float64 {
	if e == nil {
		return def
	}
	v, err := parseNumber(e.content())
	if err != nil {
		return def
	}
	return v
}

// ImportXML parses the device XML result file. Unreadable documents yield
// an empty result with zeroed calibration and an error wrapping ErrFormat.
func ImportXML(text string) (Result, error) {
	result := Result{Calibration: &calibration.Coefficients{}}

	root, err := parseElements(strings.NewReader(text))
	if err != nil {
		return result, fmt.Errorf("%w: xml: %v", ErrFormat, err)
	}

	if es := root.find("EnergySpectrum"); es != nil {
		result.Data = dataPoints(es)
		result.Meta.DataTime = seconds(es.find("MeasurementTime").number(1))
		result.Calibration = xmlCoefficients(es)
	}
	if bg := root.find("BackgroundEnergySpectrum"); bg != nil {
		result.Background = dataPoints(bg)
		result.Meta.BackgroundTime = seconds(bg.find("MeasurementTime").number(1))
	}

	if info := root.find("SampleInfo"); info != nil {
		result.Meta.Name = info.find("Name").content()
		result.Meta.Location = info.find("Location").content()
		result.Meta.Time = info.find("Time").content()
		result.Meta.Notes = info.find("Note").content()
		result.Meta.Weight = units.PositiveGrams(info.find("Weight").number(0))
		result.Meta.Volume = units.PositiveMilliliters(info.find("Volume").number(0))
	}
	result.Meta.DeviceName = root.find("DeviceConfigReference").find("Name").content()
	result.Meta.StartTime = root.find("StartTime").content()
	result.Meta.EndTime = root.find("EndTime").content()

	return result, nil
}

func dataPoints(spec *element) spectrum.Histogram {
	points := spec.findAll("DataPoint")
	h := make(spectrum.Histogram, len(points))
	for i, p := range points {
		h[i] = p.number(invalidDataPoint)
	}
	return h
}

// xmlCoefficients reads up to three Coefficient elements. The file lists
// them lowest order first; storage is highest order first, so the first
// coefficient becomes C3 and the third C1.
func xmlCoefficients(spec *element) *calibration.Coefficients {
	var c calibration.Coefficients
	slots := []*float64{&c.C3, &c.C2, &c.C1}
	for i, el := range spec.findAll("Coefficient") {
		if i >= len(slots) {
			break
		}
		*slots[i] = el.number(0)
	}
	return &c
}
