package frame

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `account,tenure,workforce,revenue
001,12,1 to 9,350.5
002,,Unknown,NA
003,3,1 to 9,1000
`

func readSample(t *testing.T) *Frame {
	t.Helper()
	f, err := ReadCSV(strings.NewReader(sample), WithStringColumns("account"))
	require.NoError(t, err)
	return f
}

func TestReadCSVInfersKinds(t *testing.T) {
	f := readSample(t)

	assert.Equal(t, 3, f.Len())
	assert.Equal(t, []string{"account", "tenure", "workforce", "revenue"}, f.Names())

	k, err := f.Kind("account")
	require.NoError(t, err)
	assert.Equal(t, String, k)

	k, err = f.Kind("tenure")
	require.NoError(t, err)
	assert.Equal(t, Float, k)

	ids, err := f.Strings("account")
	require.NoError(t, err)
	assert.Equal(t, []string{"001", "002", "003"}, ids)

	tenure, err := f.Float("tenure")
	require.NoError(t, err)
	assert.Equal(t, 12.0, tenure[0])
	assert.True(t, math.IsNaN(tenure[1]))

	revenue, err := f.Float("revenue")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(revenue[1]))
}

func TestMissingColumn(t *testing.T) {
	f := readSample(t)

	_, err := f.Float("churn")
	assert.True(t, errors.Is(err, ErrColumnNotFound))

	_, err = f.Drop("churn")
	assert.True(t, errors.Is(err, ErrColumnNotFound))

	_, err = f.Select("account", "churn")
	assert.True(t, errors.Is(err, ErrColumnNotFound))
}

func TestFilterKeepsOriginalIndex(t *testing.T) {
	f := readSample(t)
	tenure, _ := f.Float("tenure")

	kept := f.Filter(func(i int) bool { return tenure[i] >= 6 })

	assert.Equal(t, 1, kept.Len())
	assert.Equal(t, []int{0}, kept.Index())

	rest := f.Filter(func(i int) bool { return i > 0 })
	assert.Equal(t, []int{1, 2}, rest.Index())
	ids, _ := rest.Strings("account")
	assert.Equal(t, []string{"002", "003"}, ids)
}

func TestDropAndSelect(t *testing.T) {
	f := readSample(t)

	dropped, err := f.Drop("account", "workforce")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenure", "revenue"}, dropped.Names())
	assert.True(t, f.Has("account"), "drop must not mutate the source frame")

	selected, err := f.Select("revenue", "tenure")
	require.NoError(t, err)
	assert.Equal(t, []string{"revenue", "tenure"}, selected.Names())
}

func TestToCategory(t *testing.T) {
	f := readSample(t)
	require.NoError(t, f.ToCategory("workforce"))

	kind, err := f.Kind("workforce")
	require.NoError(t, err)
	assert.Equal(t, Category, kind)

	vals, err := f.Strings("workforce")
	require.NoError(t, err)
	assert.Equal(t, []string{"1 to 9", "Unknown", "1 to 9"}, vals)
}

func TestToIntRejectsMissing(t *testing.T) {
	f := readSample(t)
	assert.Error(t, f.ToInt("tenure"))

	require.NoError(t, f.SetFloat("frequency", []float64{1.9, -2.5, 3}))
	require.NoError(t, f.ToInt("frequency"))
	freq, _ := f.Float("frequency")
	assert.Equal(t, []float64{1, -2, 3}, freq)
}

func TestSetColumnLengthMismatch(t *testing.T) {
	f := readSample(t)
	assert.Error(t, f.SetFloat("x", []float64{1, 2}))
}

func TestMatrix(t *testing.T) {
	f := readSample(t)
	m, err := f.Matrix("tenure", "revenue")
	require.NoError(t, err)
	require.Len(t, m, 3)
	assert.Equal(t, []float64{12, 350.5}, m[0])
	assert.Equal(t, []float64{3, 1000}, m[2])
}

func TestRoundHalfEven(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.234, 1.23},
		{1.235, 1.24},
		{1.245, 1.24},
		{-0.125, -0.12},
		{2, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RoundHalfEven(tt.in, 2), "round(%v)", tt.in)
	}
	assert.True(t, math.IsNaN(RoundHalfEven(math.NaN(), 2)))
	assert.True(t, math.IsInf(RoundHalfEven(math.Inf(1), 2), 1))
}

func TestRoundLeavesStringsAlone(t *testing.T) {
	f := New()
	require.NoError(t, f.SetStrings("id", []string{"a"}))
	require.NoError(t, f.SetFloat("v", []float64{0.3333}))

	r := f.Round(2)
	v, _ := r.Float("v")
	assert.Equal(t, []float64{0.33}, v)
	orig, _ := f.Float("v")
	assert.Equal(t, []float64{0.3333}, orig)
}

func TestConcatUnionsColumns(t *testing.T) {
	a := New()
	require.NoError(t, a.SetFloat("x", []float64{1, 2}))
	require.NoError(t, a.SetStrings("id", []string{"a", "b"}))

	b := New()
	require.NoError(t, b.SetFloat("x", []float64{3}))
	require.NoError(t, b.SetFloat("y", []float64{9}))

	c := Concat(a, nil, b)
	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"x", "id", "y"}, c.Names())
	assert.Equal(t, []int{0, 1, 2}, c.Index())

	x, _ := c.Float("x")
	assert.Equal(t, []float64{1, 2, 3}, x)
	ids, _ := c.Strings("id")
	assert.Equal(t, []string{"a", "b", ""}, ids)
	y, _ := c.Float("y")
	assert.True(t, math.IsNaN(y[0]))
	assert.Equal(t, 9.0, y[2])
}

func TestConcatMixedKindsBecomeStrings(t *testing.T) {
	a := New()
	require.NoError(t, a.SetFloat("code", []float64{1}))
	b := New()
	require.NoError(t, b.SetStrings("code", []string{"X1"}))

	c := Concat(a, b)
	k, _ := c.Kind("code")
	assert.Equal(t, String, k)
	vals, _ := c.Strings("code")
	assert.Equal(t, []string{"1", "X1"}, vals)
}

func TestWriteCSVRoundTrip(t *testing.T) {
	f := readSample(t)
	var buf bytes.Buffer
	require.NoError(t, f.WriteCSV(&buf))

	assert.Equal(t, "account,tenure,workforce,revenue\n001,12,1 to 9,350.5\n002,,Unknown,\n003,3,1 to 9,1000\n", buf.String())
}

func TestReadCSVEmpty(t *testing.T) {
	f, err := ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())

	f, err = ReadCSV(strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, []string{"a", "b"}, f.Names())
}

func TestFromRecordsRejectsDuplicateHeader(t *testing.T) {
	_, err := FromRecords([]string{"a", "a"}, nil)
	assert.Error(t, err)
}
