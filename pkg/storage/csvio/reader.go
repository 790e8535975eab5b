// Package csvio reads gps trace CSV files and writes refined and snapped
// traces back out.
package csvio

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dsnet/compress/bzip2"
	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/lintang-b-s/roadsnap/pkg/util"
)

const (
	ColumnDatetime  = "datetime"
	ColumnLatitude  = "latitude"
	ColumnLongitude = "longitude"
	ColumnOriginal  = "original-ish"
)

var (
	ErrMissingColumn = errors.New("missing required column")
	ErrMalformedRow  = errors.New("malformed row")
)

type bzipReadCloser struct {
	*bzip2.Reader
	f *os.File
}

func (b *bzipReadCloser) Close() error {
	err := b.Reader.Close()
	if cerr := b.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Open opens a trace file, decompressing it when the name ends in .bz2.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".bz2") {
		return f, nil
	}

	bz, err := bzip2.NewReader(f, nil)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &bzipReadCloser{Reader: bz, f: f}, nil
}

func ReadTraceFile(path string) (da.Trace, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace %s: %w", path, err)
	}
	defer rc.Close()

	trace, err := ReadTrace(rc)
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", path, err)
	}
	return trace, nil
}

// ReadTrace reads a CSV with a header naming at least the datetime, latitude
// and longitude columns, in any order. Other columns are ignored. The first
// row that cannot be parsed aborts the read with an error naming its line.
func ReadTrace(r io.Reader) (da.Trace, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
	}
	if err != nil {
		return nil, err
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	idx := [3]int{}
	for k, name := range []string{ColumnDatetime, ColumnLatitude, ColumnLongitude} {
		i, ok := cols[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		idx[k] = i
	}

	var trace da.Trace
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.ParseError carries the line
			return nil, fmt.Errorf("%w: %w", ErrMalformedRow, err)
		}
		line, _ := cr.FieldPos(0)

		p, err := parsePoint(record, idx)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
		}
		trace = append(trace, p)
	}
	return trace, nil
}

func parsePoint(record []string, idx [3]int) (da.GPSPoint, error) {
	for _, i := range idx {
		if i >= len(record) {
			return da.GPSPoint{}, fmt.Errorf("expected at least %d fields, got %d", i+1, len(record))
		}
	}

	t, err := time.Parse(da.TimeLayout, strings.TrimSpace(record[idx[0]]))
	if err != nil {
		return da.GPSPoint{}, fmt.Errorf("datetime: %w", err)
	}
	lat, err := util.StringToFloat64(record[idx[1]])
	if err != nil {
		return da.GPSPoint{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := util.StringToFloat64(record[idx[2]])
	if err != nil {
		return da.GPSPoint{}, fmt.Errorf("longitude: %w", err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return da.GPSPoint{}, fmt.Errorf("coordinate (%v, %v) out of range", lat, lon)
	}
	return da.NewGPSPoint(lat, lon, t), nil
}
