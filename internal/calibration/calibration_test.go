package calibration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func TestRoundTrip(t *testing.T) {
	in := Inputs{AFrom: f(120), ATo: f(661.7), BFrom: f(300), BTo: f(1460.8), CFrom: nil, CTo: nil}
	points := PointsFromInputs(in)
	assert.Equal(t, float64(Unset), points.CFrom)

	original := Calibration{
		Coeff:  Coefficients{C1: 0.0001, C2: 2.1, C3: -3},
		Points: &points,
	}
	data, err := Export(original)
	require.NoError(t, err)

	got, inputs, err := Import(data)
	require.NoError(t, err)
	assert.Equal(t, original.Coeff, got.Coeff)
	assert.Equal(t, *original.Points, *got.Points)
	assert.Equal(t, in, inputs)
	assert.Nil(t, inputs.CFrom, "unset points import as empty inputs")
	assert.Nil(t, inputs.CTo)
}

func TestImport_Imported(t *testing.T) {
	data := []byte(` {"coeff":{"c1":0,"c2":1.5,"c3":2},"imported":true,"points":{"aFrom":1}} `)
	cal, inputs, err := Import(data)
	require.NoError(t, err)

	assert.True(t, cal.Imported)
	assert.Equal(t, Coefficients{C2: 1.5, C3: 2}, cal.Coeff)
	assert.True(t, cal.Coeff.Locked())
	require.NotNil(t, cal.Points)
	assert.Equal(t, Points{AFrom: 1, ATo: Unset, BFrom: Unset, BTo: Unset, CFrom: Unset, CTo: Unset}, *cal.Points)
	assert.Equal(t, Inputs{}, inputs)
}

func TestImport_ImportedWithoutPoints(t *testing.T) {
	cal, inputs, err := Import([]byte(`{"coeff":{"c1":1,"c2":2,"c3":3},"imported":true}`))
	require.NoError(t, err)
	assert.Nil(t, cal.Points)
	assert.Equal(t, Inputs{}, inputs)
}

func TestRoundTrip_Imported(t *testing.T) {
	points := Points{AFrom: 10, ATo: 32, BFrom: 200, BTo: 662, CFrom: Unset, CTo: Unset}
	original := Calibration{
		Coeff:    Coefficients{C1: 1, C2: 2, C3: 3},
		Imported: true,
		Points:   &points,
	}
	data, err := Export(original)
	require.NoError(t, err)

	got, inputs, err := Import(data)
	require.NoError(t, err)
	assert.Equal(t, original, got)
	assert.Equal(t, Inputs{}, inputs)
}

func TestImport_LegacyFlatLayout(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"points absent", `{"aFrom":10,"aTo":"32","bFrom":"","bTo":-1,"cFrom":500}`},
		{"points numeric", `{"points":3,"aFrom":10,"aTo":"32","bFrom":null,"bTo":-1,"cFrom":500}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, inputs, err := Import([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, Inputs{AFrom: f(10), ATo: f(32), CFrom: f(500)}, inputs)
		})
	}
}

func TestImport_Errors(t *testing.T) {
	for _, data := range []string{
		`not json`,
		`{"imported":"yes"}`,
		`{"coeff":[1,2,3]}`,
		`{"points":{"aFrom":true}}`,
		`{"points":{"aFrom":"ten"}}`,
	} {
		_, _, err := Import([]byte(data))
		assert.ErrorIs(t, err, ErrInvalid, data)
	}
}

func TestCoefficientsLocked(t *testing.T) {
	assert.False(t, Coefficients{}.Locked())
	assert.False(t, Coefficients{C3: 1}.Locked())
	assert.True(t, Coefficients{C1: 1, C3: 1}.Locked())
	assert.Equal(t, 3, Coefficients{C1: 1, C2: 1, C3: 1}.NonZero())
}
