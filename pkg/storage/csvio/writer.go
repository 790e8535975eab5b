package csvio

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteTraceFile writes a refined trace with the input column layout so it can
// be read back by ReadTraceFile.
func WriteTraceFile(path string, trace da.Trace) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := WriteTrace(f, trace); err != nil {
		return fmt.Errorf("write trace %s: %w", path, err)
	}
	return f.Close()
}

func WriteTrace(w io.Writer, trace da.Trace) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{ColumnDatetime, ColumnLatitude, ColumnLongitude}); err != nil {
		return err
	}
	for _, p := range trace {
		record := []string{p.Time().Format(da.TimeLayout), formatFloat(p.Lat()), formatFloat(p.Lon())}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// RowWriter appends snapped rows to a CSV stream. The header is written once,
// when the writer is created.
type RowWriter struct {
	closer io.Closer
	buf    *bufio.Writer
	cw     *csv.Writer
	record []string
}

func CreateRowWriter(path string) (*RowWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	rw, err := NewRowWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	rw.closer = f
	return rw, nil
}

func NewRowWriter(w io.Writer) (*RowWriter, error) {
	buf := bufio.NewWriter(w)
	rw := &RowWriter{
		buf:    buf,
		cw:     csv.NewWriter(buf),
		record: make([]string, 4),
	}
	if err := rw.cw.Write([]string{ColumnDatetime, ColumnLatitude, ColumnLongitude, ColumnOriginal}); err != nil {
		return nil, err
	}
	return rw, nil
}

// WriteRows appends rows and flushes them to the underlying writer.
func (rw *RowWriter) WriteRows(rows []da.DensifiedRow) error {
	for _, r := range rows {
		rw.record[0] = r.Time.Format(da.OutputTimeLayout)
		rw.record[1] = formatFloat(r.Lat)
		rw.record[2] = formatFloat(r.Lon)
		rw.record[3] = strconv.Itoa(r.OriginalFlag())
		if err := rw.cw.Write(rw.record); err != nil {
			return err
		}
	}
	rw.cw.Flush()
	if err := rw.cw.Error(); err != nil {
		return err
	}
	return rw.buf.Flush()
}

func (rw *RowWriter) Close() error {
	rw.cw.Flush()
	err := rw.cw.Error()
	if ferr := rw.buf.Flush(); err == nil {
		err = ferr
	}
	if rw.closer != nil {
		if cerr := rw.closer.Close(); err == nil {
			err = cerr
		}
		rw.closer = nil
	}
	return err
}
