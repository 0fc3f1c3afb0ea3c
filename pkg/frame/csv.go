package frame

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

type readOptions struct {
	strings map[string]struct{}
}

// ReadOption customizes how raw records are typed.
type ReadOption func(*readOptions)

// WithStringColumns keeps the named columns as strings even when every value
// parses as a number (identifiers such as "00123").
func WithStringColumns(names ...string) ReadOption {
	return func(o *readOptions) {
		for _, n := range names {
			o.strings[n] = struct{}{}
		}
	}
}

// FromRecords builds a frame from a header and string rows. A column becomes
// Float when all of its non-missing values parse as numbers.
func FromRecords(header []string, rows [][]string, opts ...ReadOption) (*Frame, error) {
	o := readOptions{strings: map[string]struct{}{}}
	for _, opt := range opts {
		opt(&o)
	}
	seen := map[string]struct{}{}
	for _, h := range header {
		if _, dup := seen[h]; dup {
			return nil, fmt.Errorf("frame: duplicate column %q", h)
		}
		seen[h] = struct{}{}
	}

	f := New()
	for j, name := range header {
		raw := make([]string, len(rows))
		for i, rec := range rows {
			if j >= len(rec) {
				return nil, fmt.Errorf("frame: row %d has %d fields, header has %d", i, len(rec), len(header))
			}
			raw[i] = rec[j]
		}

		_, forced := o.strings[name]
		numeric := !forced
		floats := make([]float64, len(raw))
		if numeric {
			for i, s := range raw {
				if IsMissing(s) {
					floats[i] = math.NaN()
					continue
				}
				v, err := strconv.ParseFloat(s, 64)
				if err != nil {
					numeric = false
					break
				}
				floats[i] = v
			}
		}

		if numeric {
			if err := f.put(&column{name: name, kind: Float, floats: floats}, len(raw)); err != nil {
				return nil, err
			}
			continue
		}
		for i, s := range raw {
			if IsMissing(s) {
				raw[i] = ""
			}
		}
		if err := f.put(&column{name: name, kind: String, strs: raw}, len(raw)); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// ReadCSV reads a frame from CSV with a header row.
func ReadCSV(r io.Reader, opts ...ReadOption) (*Frame, error) {
	reader := csv.NewReader(bufio.NewReader(r))
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("frame: read header: %w", err)
	}
	header = append([]string(nil), header...)

	var rows [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("frame: read record %d: %w", len(rows)+1, err)
		}
		rows = append(rows, rec)
	}
	return FromRecords(header, rows, opts...)
}

// WriteCSV writes the frame as CSV with a header row. Missing values are
// written as empty fields.
func (f *Frame) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.Names()); err != nil {
		return fmt.Errorf("frame: write header: %w", err)
	}
	cols := make([][]string, len(f.cols))
	for j, c := range f.cols {
		vals, _ := f.Strings(c.name)
		cols[j] = vals
	}
	rec := make([]string, len(f.cols))
	for i := 0; i < f.n; i++ {
		for j := range cols {
			rec[j] = cols[j][i]
		}
		if err := writer.Write(rec); err != nil {
			return fmt.Errorf("frame: write row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSVFile reads a frame from a CSV file.
func ReadCSVFile(path string, opts ...ReadOption) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("frame: open %s: %w", path, err)
	}
	defer file.Close()
	return ReadCSV(file, opts...)
}

// WriteCSVFile writes the frame to a CSV file, replacing it.
func (f *Frame) WriteCSVFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("frame: create %s: %w", path, err)
	}
	if err := f.WriteCSV(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
