package spectrum

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const xyData = `##TITLE=sample A_1
##JCAMP-DX=4.24
##DATA TYPE=INFRARED SPECTRUM
##XUNITS=1/CM
##YUNITS=ABSORBANCE
##FIRSTX=100
##LASTX=107
##XFACTOR=1
##YFACTOR=0.5
##NPOINTS=8
##XYDATA=(X++(Y..Y))
100 2 4 6 8 $$ first line
104 10,12 14 16
##END=
`

func TestReadXYData(t *testing.T) {
	s, err := Read(strings.NewReader(xyData))
	require.NoError(t, err)

	assert.Equal(t, "sample A_1", s.Title)
	assert.Equal(t, "INFRARED SPECTRUM", s.DataType)
	assert.Equal(t, "1/CM", s.XUnits)
	assert.Equal(t, []float64{100, 101, 102, 103, 104, 105, 106, 107}, s.X)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8}, s.Y)
	assert.Equal(t, 8, s.NbPoints())
	assert.Equal(t, 100.0, s.FirstX())
	assert.Equal(t, 107.0, s.LastX())
}

func TestReadXYDataWithoutHeaderStep(t *testing.T) {
	in := "##TITLE=t\n##XYDATA=(X++(Y..Y))\n10 1 2\n14 3 4\n##END=\n"
	s, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 12, 14, 16}, s.X)
}

func TestReadPAC(t *testing.T) {
	in := "##XYDATA=(X++(Y..Y))\n1+10-2+3.5e+1\n##END=\n"
	s, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []float64{10, -2, 35}, s.Y)
}

func TestReadErrors(t *testing.T) {
	tests := map[string]string{
		"no table":   "##TITLE=t\n##END=\n",
		"compressed": "##XYDATA=(X++(Y..Y))\n100@AJ\n##END=\n",
		"odd pairs":  "##XYPOINTS=(XY..XY)\n1, 2\n3\n##END=\n",
		"bad form":   "##XYDATA=(R++(I..I))\n1 2\n##END=\n",
		"bad factor": "##YFACTOR=abc\n##XYPOINTS=(XY..XY)\n1, 2\n##END=\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := &Spectrum{
		Title:  "round trip",
		XUnits: "NM",
		X:      []float64{400, 401.5, 403},
		Y:      []float64{-0.25, 1e-3, 12},
	}
	var buf bytes.Buffer
	require.NoError(t, s.Write(&buf))
	assert.Contains(t, buf.String(), "##XYPOINTS=(XY..XY)")

	got, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, s.X, got.X)
	assert.Equal(t, s.Y, got.Y)
	assert.Equal(t, "NM", got.XUnits)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v_snv", "A_1.jdx")
	s := &Spectrum{X: []float64{1, 2}, Y: []float64{3, 4}}
	require.NoError(t, s.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.Y, got.Y)

	_, err = Load(filepath.Join(t.TempDir(), "missing.jdx"))
	assert.Error(t, err)
}

func TestSNV(t *testing.T) {
	s := &Spectrum{X: []float64{1, 2, 3, 4, 5}, Y: []float64{2, 4, 4, 4, 6}}
	s.SNV()

	mean := 0.0
	for _, v := range s.Y {
		mean += v
	}
	assert.InDelta(t, 0, mean/5, 1e-12)
	// sample standard deviation of the input is sqrt(2)
	assert.InDelta(t, -2/math.Sqrt2, s.Y[0], 1e-12)

	flat := &Spectrum{X: []float64{1, 2}, Y: []float64{3, 3}}
	flat.SNV()
	assert.Equal(t, []float64{0, 0}, flat.Y)
}

func TestShiftPowerLog(t *testing.T) {
	s := &Spectrum{X: []float64{1, 2, 3}, Y: []float64{-1, 0, 3}}
	assert.Equal(t, -1.0, s.MinY())

	s.YShift(-s.MinY())
	assert.Equal(t, []float64{0, 1, 4}, s.Y)
	s.Power(0.5)
	assert.Equal(t, []float64{0, 1, 2}, s.Y)
	s.Power(2)
	assert.Equal(t, []float64{0, 1, 4}, s.Y)

	l := &Spectrum{X: []float64{1, 2}, Y: []float64{1, 100}}
	l.Log(10)
	assert.InDelta(t, 0, l.Y[0], 1e-12)
	assert.InDelta(t, 2, l.Y[1], 1e-12)
}

func TestCorrelation(t *testing.T) {
	s := &Spectrum{X: []float64{0, 1, 2, 3}, Y: []float64{1, 4, 9, 16}}
	require.NoError(t, s.Correlation([]float64{-1, 1}))
	assert.Equal(t, []float64{3, 5, 7}, s.Y)
	assert.Equal(t, []float64{0.5, 1.5, 2.5}, s.X)

	require.NoError(t, s.Correlation([]float64{-1, 1}))
	assert.Equal(t, []float64{2, 2}, s.Y)

	assert.Error(t, s.Correlation(nil))
	assert.Error(t, s.Correlation([]float64{1, 1, 1}))
}

func TestFillAndSuppress(t *testing.T) {
	s := &Spectrum{X: []float64{1, 2, 3, 4, 5}, Y: []float64{1, 1, 1, 1, 1}}
	s.FillWith(4, 2, 0)
	assert.Equal(t, []float64{1, 0, 0, 0, 1}, s.Y)

	s.SuppressZone(2, 3)
	assert.Equal(t, []float64{1, 4, 5}, s.X)
	assert.Equal(t, []float64{1, 0, 1}, s.Y)
}

func TestEquallySpaced(t *testing.T) {
	s := &Spectrum{X: []float64{0, 1, 2, 3, 4}, Y: []float64{2, 2, 2, 2, 2}}

	got, err := s.EquallySpaced(1, 3, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2, 2, 2}, got, 1e-12)

	// slots at the edges are half outside the signal
	got, err = s.EquallySpaced(0, 4, 5)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 2, 2, 1}, got, 1e-12)

	ramp := &Spectrum{X: []float64{4, 3, 2, 1, 0}, Y: []float64{4, 3, 2, 1, 0}}
	got, err = ramp.EquallySpaced(1, 3, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 2, 3}, got, 1e-12)

	got, err = ramp.EquallySpaced(0, 4, 1)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{2}, got, 1e-12)

	_, err = s.EquallySpaced(0, 4, 0)
	assert.Error(t, err)
}

func TestClone(t *testing.T) {
	s := &Spectrum{X: []float64{1}, Y: []float64{2}}
	c := s.Clone()
	c.Y[0] = 5
	assert.Equal(t, 2.0, s.Y[0])
}
