package dataset

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSVTypes(t *testing.T) {
	in := strings.NewReader("fid,name,kwh_total\n1,alpha,100.5\n2,beta,\n3,gamma,250\n")
	f, err := ReadCSVFrom(in)
	require.NoError(t, err)
	require.Equal(t, 3, f.NumRows())
	assert.Equal(t, []string{"fid", "name", "kwh_total"}, f.Columns())

	kwh, ok := f.Numeric("kwh_total")
	require.True(t, ok, "column with parseable and empty cells should be numeric")
	assert.Equal(t, 100.5, kwh[0])
	assert.True(t, math.IsNaN(kwh[1]), "empty cell should read as NaN")

	name, ok := f.Text("name")
	require.True(t, ok)
	assert.Equal(t, "beta", name[1])
}

func TestCSVRoundTrip(t *testing.T) {
	f := NewFrame(2)
	require.NoError(t, f.SetNumeric("a", []float64{1.25, math.NaN()}))
	require.NoError(t, f.SetText("b", []string{"x", "y"}))

	var buf bytes.Buffer
	require.NoError(t, f.WriteCSVTo(&buf))

	back, err := ReadCSVFrom(&buf)
	require.NoError(t, err)
	a, ok := back.Numeric("a")
	require.True(t, ok)
	assert.Equal(t, 1.25, a[0])
	assert.True(t, math.IsNaN(a[1]))
	b, ok := back.Text("b")
	require.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, b)
}

func TestSortDescendingBy(t *testing.T) {
	f := NewFrame(4)
	require.NoError(t, f.SetNumeric("score", []float64{0.2, math.NaN(), 0.9, 0.5}))
	require.NoError(t, f.SetText("tag", []string{"low", "nan", "high", "mid"}))

	require.NoError(t, f.SortDescendingBy("score"))
	tag, _ := f.Text("tag")
	assert.Equal(t, []string{"high", "mid", "low", "nan"}, tag, "NaN rows sort last")
}

func TestSelectRows(t *testing.T) {
	f := NewFrame(3)
	require.NoError(t, f.SetNumeric("v", []float64{10, 20, 30}))

	sub := f.SelectRows([]int{2, 0})
	require.Equal(t, 2, sub.NumRows())
	v, _ := sub.Numeric("v")
	assert.Equal(t, []float64{30, 10}, v)

	// source frame untouched
	orig, _ := f.Numeric("v")
	assert.Equal(t, []float64{10, 20, 30}, orig)
}
