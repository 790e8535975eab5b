package csvio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dsnet/compress/bzip2"
	da "github.com/lintang-b-s/roadsnap/pkg/datastructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `id,longitude,datetime,speed,latitude
1,110.3695,2024-01-01 10:00:00,12,-7.7956
2,110.3702,2024-01-01 10:00:05,13,-7.7960
`

func TestReadTraceSelectsColumnsByName(t *testing.T) {
	trace, err := ReadTrace(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, trace, 2)

	assert.Equal(t, -7.7956, trace[0].Lat())
	assert.Equal(t, 110.3695, trace[0].Lon())
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 5, 0, time.UTC), trace[1].Time())
}

func TestReadTraceErrors(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		wantErr error
		wantMsg string
	}{
		{
			name:    "empty file",
			input:   "",
			wantErr: ErrMissingColumn,
		},
		{
			name:    "missing longitude",
			input:   "datetime,latitude\n2024-01-01 10:00:00,1\n",
			wantErr: ErrMissingColumn,
			wantMsg: "longitude",
		},
		{
			name:    "bad datetime",
			input:   "datetime,latitude,longitude\n2024-01-01 10:00:00,1,2\n01/01/2024,1,2\n",
			wantErr: ErrMalformedRow,
			wantMsg: "line 3",
		},
		{
			name:    "bad latitude",
			input:   "datetime,latitude,longitude\n2024-01-01 10:00:00,north,2\n",
			wantErr: ErrMalformedRow,
			wantMsg: "line 2",
		},
		{
			name:    "short row",
			input:   "datetime,latitude,longitude\n2024-01-01 10:00:00,1\n",
			wantErr: ErrMalformedRow,
		},
		{
			name:    "latitude out of range",
			input:   "datetime,latitude,longitude\n2024-01-01 10:00:00,91,2\n",
			wantErr: ErrMalformedRow,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTrace(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestReadTraceFileBzip2(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.csv.bz2")
	f, err := os.Create(path)
	require.NoError(t, err)

	bz, err := bzip2.NewWriter(f, &bzip2.WriterConfig{})
	require.NoError(t, err)
	_, err = bz.Write([]byte(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, bz.Close())
	require.NoError(t, f.Close())

	trace, err := ReadTraceFile(path)
	require.NoError(t, err)
	assert.Len(t, trace, 2)
}

func TestWriteTraceFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refined.csv")
	want := da.Trace{
		da.NewGPSPoint(-7.7956, 110.3695, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)),
		da.NewGPSPoint(-7.7960, 110.3702, time.Date(2024, 1, 1, 10, 0, 5, 0, time.UTC)),
	}
	require.NoError(t, WriteTraceFile(path, want))

	got, err := ReadTraceFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRowWriter(t *testing.T) {
	var buf bytes.Buffer
	rw, err := NewRowWriter(&buf)
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, rw.WriteRows([]da.DensifiedRow{
		{Time: base, Lat: -7.5, Lon: 110.25, Original: true},
		{Time: base.Add(2500 * time.Millisecond), Lat: -7.4, Lon: 110.3},
	}))
	require.NoError(t, rw.WriteRows([]da.DensifiedRow{
		{Time: base.Add(5 * time.Second), Lat: -7.3, Lon: 110.35, Original: true},
	}))
	require.NoError(t, rw.Close())

	want := "datetime,latitude,longitude,original-ish\n" +
		"2024-01-01 10:00:00,-7.5,110.25,1\n" +
		"2024-01-01 10:00:02.5,-7.4,110.3,0\n" +
		"2024-01-01 10:00:05,-7.3,110.35,1\n"
	assert.Equal(t, want, buf.String())
}

func TestRowWriterHeaderOnEmptyRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	rw, err := CreateRowWriter(path)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "datetime,latitude,longitude,original-ish\n", string(data))
}
