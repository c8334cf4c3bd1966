// Package calibration reads and writes the energy calibration object shared
// with the plotting front end. Coefficients are opaque here: they are stored,
// exported and re-imported, never solved or applied.
package calibration

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Unset marks a calibration point the user left empty.
const Unset = -1

// ErrInvalid is returned for calibration documents that cannot be read.
var ErrInvalid = errors.New("invalid calibration")

// Coefficients of the polynomial energy calibration.
type Coefficients struct {
	C1 float64 `json:"c1"`
	C2 float64 `json:"c2"`
	C3 float64 `json:"c3"`
}

// NonZero counts the coefficients that are set.
func (c Coefficients) NonZero() int {
	n := 0
	for _, v := range []float64{c.C1, c.C2, c.C3} {
		if v != 0 {
			n++
		}
	}
	return n
}

// Locked reports whether the coefficients are authoritative: at least two of
// them are non-zero, so manual calibration edits should be disabled.
func (c Coefficients) Locked() bool {
	return c.NonZero() >= 2
}

// Points are the channel/energy pairs a calibration was derived from.
// Unset marks an empty pair member.
type Points struct {
	AFrom float64 `json:"aFrom"`
	ATo   float64 `json:"aTo"`
	BFrom float64 `json:"bFrom"`
	BTo   float64 `json:"bTo"`
	CFrom float64 `json:"cFrom"`
	CTo   float64 `json:"cTo"`
}

// Calibration is the exported calibration object.
type Calibration struct {
	Coeff    Coefficients `json:"coeff"`
	Imported bool         `json:"imported"`
	Points   *Points      `json:"points,omitempty"`
}

// Inputs are the six calibration point inputs; nil is an empty input.
type Inputs struct {
	AFrom *float64 `json:"aFrom"`
	ATo   *float64 `json:"aTo"`
	BFrom *float64 `json:"bFrom"`
	BTo   *float64 `json:"bTo"`
	CFrom *float64 `json:"cFrom"`
	CTo   *float64 `json:"cTo"`
}

var pointKeys = []string{"aFrom", "aTo", "bFrom", "bTo", "cFrom", "cTo"}

func (in *Inputs) fields() []**float64 {
	return []**float64{&in.AFrom, &in.ATo, &in.BFrom, &in.BTo, &in.CFrom, &in.CTo}
}

func (p *Points) fields() []*float64 {
	return []*float64{&p.AFrom, &p.ATo, &p.BFrom, &p.BTo, &p.CFrom, &p.CTo}
}

// PointsFromInputs converts inputs to points, storing empty inputs as Unset.
func PointsFromInputs(in Inputs) Points {
	var p Points
	pf := p.fields()
	for i, f := range in.fields() {
		if *f == nil {
			*pf[i] = Unset
		} else {
			*pf[i] = **f
		}
	}
	return p
}

// Inputs converts points back to inputs, mapping Unset to nil.
func (p Points) Inputs() Inputs {
	var in Inputs
	pf := p.fields()
	for i, f := range in.fields() {
		*f = inputValue(*pf[i])
	}
	return in
}

func inputValue(v float64) *float64 {
	if v == Unset {
		return nil
	}
	return &v
}

// Export encodes c as JSON.
func Export(c Calibration) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode calibration: %w", err)
	}
	return data, nil
}

// Import decodes a calibration document. The point inputs are read from
// "points", or from the top level for the older flat layout where "points"
// is absent or a number. For imported calibrations the coefficients are
// authoritative: points are carried through but the inputs are left empty.
func Import(data []byte) (Calibration, Inputs, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return Calibration{}, Inputs{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var cal Calibration
	if v, ok := raw["imported"]; ok {
		if err := json.Unmarshal(v, &cal.Imported); err != nil {
			return Calibration{}, Inputs{}, fmt.Errorf("%w: imported: %v", ErrInvalid, err)
		}
	}
	if v, ok := raw["coeff"]; ok && !isNull(v) {
		if err := json.Unmarshal(v, &cal.Coeff); err != nil {
			return Calibration{}, Inputs{}, fmt.Errorf("%w: coeff: %v", ErrInvalid, err)
		}
	}
	points, hasPoints := raw["points"]
	hasPoints = hasPoints && isObject(points)
	if cal.Imported && !hasPoints {
		return cal, Inputs{}, nil
	}

	source := raw
	if hasPoints {
		source = nil
		if err := json.Unmarshal(points, &source); err != nil {
			return Calibration{}, Inputs{}, fmt.Errorf("%w: points: %v", ErrInvalid, err)
		}
	}

	var in Inputs
	for i, f := range in.fields() {
		v, err := number(source[pointKeys[i]])
		if err != nil {
			return Calibration{}, Inputs{}, fmt.Errorf("%w: %s: %v", ErrInvalid, pointKeys[i], err)
		}
		if v != nil && *v == Unset {
			v = nil
		}
		*f = v
	}
	p := PointsFromInputs(in)
	cal.Points = &p
	if cal.Imported {
		// Points of an imported calibration are kept for export only; the
		// inputs stay empty so manual edits remain locked.
		return cal, Inputs{}, nil
	}
	return cal, in, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

// number reads a JSON number or numeric string. Absent, null and empty
// string values are empty inputs.
func number(raw json.RawMessage) (*float64, error) {
	if isNull(raw) {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case float64:
		return &v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, err
		}
		return &f, nil
	default:
		return nil, fmt.Errorf("unexpected %T", v)
	}
}
