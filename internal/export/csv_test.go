package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/gps"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/imu"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/pipeline"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/sim"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

var _ pipeline.Observer = (*StrokeLog)(nil)

func readCSV(t *testing.T, r *strings.Reader) [][]string {
	t.Helper()
	recs, err := csv.NewReader(r).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestWriteCSV(t *testing.T) {
	samples := []imu.RawSample{
		{T: 1000, Ax: 0.5, Az: 9.81},
		{T: 1020, Ax: -0.25, Az: 9.8, Aux: &imu.Aux{Mx: 20, My: -3, Mz: 41}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, samples))

	recs := readCSV(t, strings.NewReader(buf.String()))
	require.Len(t, recs, 3)
	assert.Equal(t, imu.RawSample{}.CSVHeader(), recs[0])
	assert.Equal(t, []string{"1000", "0.5", "0", "9.81", "0", "0", "0", "", "", ""}, recs[1])
	assert.Equal(t, "41", recs[2][9])

	buf.Reset()
	require.NoError(t, WriteCSV[gps.Sample](&buf, nil))
	assert.Equal(t, strings.Join(gps.Sample{}.CSVHeader(), ",")+"\n", buf.String())
}

func TestWriterConcurrentRows(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, []string{"a", "b"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				w.WriteRow([]string{"1", "2"})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, w.Close())

	assert.Equal(t, uint64(800), w.Rows())
	assert.Len(t, readCSV(t, strings.NewReader(buf.String())), 801)
}

func TestStrokeLog(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewStrokeLog(&buf)
	require.NoError(t, err)
	l.OnStroke(stroke.Event{CatchTime: 1000, FinishTime: 1800, DriveTime: 800, RecoveryTime: 1600, StrokeRate: 25, DrivePercent: 33})
	l.OnSample(pipeline.Output{})
	require.NoError(t, l.W.Flush())

	recs := readCSV(t, strings.NewReader(buf.String()))
	require.Len(t, recs, 2)
	assert.Equal(t, "25", recs[1][4])
}

func TestFiles(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Duration = 4
	s, err := sim.Session(cfg)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "out")
	paths, err := Files(dir, "row", s, []stroke.Event{{CatchTime: 1}})
	require.NoError(t, err)
	require.Len(t, paths, 4)

	want := map[string]int{
		"row_imu.csv":         len(s.IMU) + 1,
		"row_gps.csv":         len(s.GPS) + 1,
		"row_calibration.csv": len(s.CalibrationSamples) + 1,
		"row_strokes.csv":     2,
	}
	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		recs := readCSV(t, strings.NewReader(string(data)))
		assert.Len(t, recs, want[filepath.Base(p)], p)
	}

	s.CalibrationSamples = nil
	paths, err = Files(dir, "bare", s, nil)
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}
