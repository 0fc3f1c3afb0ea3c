// Package frame holds the in-memory table the pipeline stages pass around:
// named columns of floats (NaN is missing), strings or categories, plus the
// original row index that survives filtering.
package frame

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// ErrColumnNotFound is returned when an operation names a column the frame lacks.
var ErrColumnNotFound = errors.New("frame: column not found")

// Kind is the storage type of a column.
type Kind int

const (
	Float Kind = iota
	String
	Category
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case String:
		return "string"
	case Category:
		return "category"
	}
	return "unknown"
}

type column struct {
	name   string
	kind   Kind
	floats []float64
	strs   []string
}

func (c *column) clone() *column {
	n := &column{name: c.name, kind: c.kind}
	if c.floats != nil {
		n.floats = append([]float64(nil), c.floats...)
	}
	if c.strs != nil {
		n.strs = append([]string(nil), c.strs...)
	}
	return n
}

func (c *column) take(rows []int) *column {
	n := &column{name: c.name, kind: c.kind}
	if c.kind == Float {
		n.floats = make([]float64, len(rows))
		for i, r := range rows {
			n.floats[i] = c.floats[r]
		}
		return n
	}
	n.strs = make([]string, len(rows))
	for i, r := range rows {
		n.strs[i] = c.strs[r]
	}
	return n
}

// Frame is a column-oriented table. The zero value is an empty frame.
type Frame struct {
	cols  []*column
	pos   map[string]int
	index []int
	n     int
}

// New returns an empty frame.
func New() *Frame {
	return &Frame{pos: map[string]int{}}
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.n }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	out := make([]string, len(f.cols))
	for i, c := range f.cols {
		out[i] = c.name
	}
	return out
}

// Has reports whether the frame has a column with the given name.
func (f *Frame) Has(name string) bool {
	_, ok := f.pos[name]
	return ok
}

// Kind returns the kind of the named column.
func (f *Frame) Kind(name string) (Kind, error) {
	c, err := f.col(name)
	if err != nil {
		return 0, err
	}
	return c.kind, nil
}

// Index returns the original row positions of the rows currently in the frame.
func (f *Frame) Index() []int {
	return append([]int(nil), f.index...)
}

// ResetIndex renumbers the rows 0..n-1.
func (f *Frame) ResetIndex() {
	f.index = identity(f.n)
}

func (f *Frame) col(name string) (*column, error) {
	if f.pos == nil {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	i, ok := f.pos[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
	}
	return f.cols[i], nil
}

func (f *Frame) put(c *column, length int) error {
	if f.pos == nil {
		f.pos = map[string]int{}
	}
	if len(f.cols) == 0 {
		f.n = length
		f.index = identity(length)
	} else if length != f.n {
		return fmt.Errorf("frame: column %s has %d rows, frame has %d", c.name, length, f.n)
	}
	if i, ok := f.pos[c.name]; ok {
		f.cols[i] = c
		return nil
	}
	f.pos[c.name] = len(f.cols)
	f.cols = append(f.cols, c)
	return nil
}

// SetFloat adds or replaces a float column. The slice is copied.
func (f *Frame) SetFloat(name string, values []float64) error {
	return f.put(&column{name: name, kind: Float, floats: append([]float64(nil), values...)}, len(values))
}

// SetStrings adds or replaces a string column. The slice is copied.
func (f *Frame) SetStrings(name string, values []string) error {
	return f.put(&column{name: name, kind: String, strs: append([]string(nil), values...)}, len(values))
}

// Float returns a copy of a column as floats. String and category columns
// are parsed; values that do not parse are returned as NaN.
func (f *Frame) Float(name string) ([]float64, error) {
	c, err := f.col(name)
	if err != nil {
		return nil, err
	}
	if c.kind == Float {
		return append([]float64(nil), c.floats...), nil
	}
	out := make([]float64, len(c.strs))
	for i, s := range c.strs {
		out[i] = parseFloat(s)
	}
	return out, nil
}

// Strings returns a copy of a column as strings. Missing floats become "".
func (f *Frame) Strings(name string) ([]string, error) {
	c, err := f.col(name)
	if err != nil {
		return nil, err
	}
	if c.kind != Float {
		return append([]string(nil), c.strs...), nil
	}
	out := make([]string, len(c.floats))
	for i, v := range c.floats {
		out[i] = formatFloat(v)
	}
	return out, nil
}

// ToCategory marks a column as categorical. Values are kept as strings.
func (f *Frame) ToCategory(name string) error {
	vals, err := f.Strings(name)
	if err != nil {
		return err
	}
	return f.put(&column{name: name, kind: Category, strs: vals}, len(vals))
}

// ToInt truncates a column to integers. A missing value is an error because
// an integer column cannot represent it.
func (f *Frame) ToInt(name string) error {
	vals, err := f.Float(name)
	if err != nil {
		return err
	}
	for i, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("frame: column %s row %d: cannot convert non-finite value to int", name, i)
		}
		vals[i] = math.Trunc(v)
	}
	return f.SetFloat(name, vals)
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	out := New()
	for _, c := range f.cols {
		out.pos[c.name] = len(out.cols)
		out.cols = append(out.cols, c.clone())
	}
	out.n = f.n
	out.index = append([]int(nil), f.index...)
	return out
}

// Select returns a new frame with only the named columns, in that order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	out := New()
	for _, name := range names {
		c, err := f.col(name)
		if err != nil {
			return nil, err
		}
		out.pos[name] = len(out.cols)
		out.cols = append(out.cols, c.clone())
	}
	out.n = f.n
	out.index = append([]int(nil), f.index...)
	return out, nil
}

// Drop returns a new frame without the named columns. Naming a column that
// does not exist is an error.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	skip := map[string]struct{}{}
	for _, name := range names {
		if !f.Has(name) {
			return nil, fmt.Errorf("%w: %s", ErrColumnNotFound, name)
		}
		skip[name] = struct{}{}
	}
	keep := make([]string, 0, len(f.cols))
	for _, c := range f.cols {
		if _, ok := skip[c.name]; !ok {
			keep = append(keep, c.name)
		}
	}
	return f.Select(keep...)
}

// Rows returns a new frame holding the given row positions, in order.
func (f *Frame) Rows(rows []int) *Frame {
	out := New()
	for _, c := range f.cols {
		out.pos[c.name] = len(out.cols)
		out.cols = append(out.cols, c.take(rows))
	}
	out.n = len(rows)
	out.index = make([]int, len(rows))
	for i, r := range rows {
		out.index[i] = f.index[r]
	}
	return out
}

// Filter returns a new frame with the rows for which keep returns true.
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	rows := make([]int, 0, f.n)
	for i := 0; i < f.n; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return f.Rows(rows)
}

// Matrix returns the named columns as a row-major matrix.
func (f *Frame) Matrix(names ...string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, name := range names {
		vals, err := f.Float(name)
		if err != nil {
			return nil, err
		}
		cols[j] = vals
	}
	out := make([][]float64, f.n)
	for i := range out {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		out[i] = row
	}
	return out, nil
}

// Round returns a copy with every float column rounded half-to-even to the
// given number of decimals.
func (f *Frame) Round(decimals int32) *Frame {
	out := f.Clone()
	for _, c := range out.cols {
		if c.kind != Float {
			continue
		}
		for i, v := range c.floats {
			c.floats[i] = RoundHalfEven(v, decimals)
		}
	}
	return out
}

// RoundHalfEven rounds v to the given number of decimals using banker's rounding.
func RoundHalfEven(v float64, decimals int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, _ := decimal.NewFromFloat(v).RoundBank(decimals).Float64()
	return r
}

// Concat stacks frames vertically. The result has the union of the columns
// in first-seen order; cells absent from a source frame are missing. A column
// that is float in every source stays float, otherwise it becomes string.
// The row index of the result is reset.
func Concat(frames ...*Frame) *Frame {
	order := []string{}
	kinds := map[string]Kind{}
	total := 0
	for _, fr := range frames {
		if fr == nil {
			continue
		}
		total += fr.n
		for _, c := range fr.cols {
			k, ok := kinds[c.name]
			if !ok {
				order = append(order, c.name)
				kinds[c.name] = c.kind
				continue
			}
			if k != c.kind {
				kinds[c.name] = String
			}
		}
	}
	out := New()
	for _, name := range order {
		c := &column{name: name, kind: kinds[name]}
		if c.kind == Float {
			c.floats = make([]float64, 0, total)
		} else {
			c.strs = make([]string, 0, total)
		}
		for _, fr := range frames {
			if fr == nil {
				continue
			}
			src, err := fr.col(name)
			switch {
			case err != nil && c.kind == Float:
				for i := 0; i < fr.n; i++ {
					c.floats = append(c.floats, math.NaN())
				}
			case err != nil:
				for i := 0; i < fr.n; i++ {
					c.strs = append(c.strs, "")
				}
			case c.kind == Float:
				c.floats = append(c.floats, src.floats...)
			default:
				vals, _ := fr.Strings(name)
				c.strs = append(c.strs, vals...)
			}
		}
		out.pos[name] = len(out.cols)
		out.cols = append(out.cols, c)
	}
	out.n = total
	out.index = identity(total)
	return out
}

func identity(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

// IsMissing reports whether a raw cell value denotes a missing value.
func IsMissing(s string) bool {
	switch s {
	case "", "NA", "NaN", "nan", "null", "NULL", "None":
		return true
	}
	return false
}

func parseFloat(s string) float64 {
	if IsMissing(s) {
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
