package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/thiesmoeller/wrc-coach-sub001/internal/codec"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/pipeline"
	"github.com/thiesmoeller/wrc-coach-sub001/internal/stroke"
)

// Row is anything that renders itself as one CSV line.
type Row interface {
	CSVHeader() []string
	CSVRow() []string
}

// WriteCSV writes a header followed by one line per row.
func WriteCSV[T Row](w io.Writer, rows []T) error {
	var zero T
	cw := csv.NewWriter(w)
	if err := cw.Write(zero.CSVHeader()); err != nil {
		return fmt.Errorf("csv write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.CSVRow()); err != nil {
			return fmt.Errorf("csv write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Writer is a buffered CSV writer safe for use from several goroutines.
// Rows are flushed on Flush or Close, not per row.
type Writer struct {
	mu   sync.Mutex
	c    io.Closer
	buf  *bufio.Writer
	csv  *csv.Writer
	rows uint64
}

// NewWriter writes header to w right away. If w is an io.Closer, Close
// closes it.
func NewWriter(w io.Writer, header []string) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 64*1024)
	cw := csv.NewWriter(bw)
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("csv write header: %w", err)
	}
	out := &Writer{buf: bw, csv: cw}
	if c, ok := w.(io.Closer); ok {
		out.c = c
	}
	return out, nil
}

func (w *Writer) WriteRow(row []string) {
	w.mu.Lock()
	_ = w.csv.Write(row) // error is kept by csv.Writer; checked on Flush
	w.rows++
	w.mu.Unlock()
}

func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.buf.Flush()
}

func (w *Writer) Close() error {
	err := w.Flush()
	if w.c != nil {
		if cerr := w.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Rows returns the number of data rows written, header excluded.
func (w *Writer) Rows() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// StrokeLog appends each stroke it observes to a CSV writer.
type StrokeLog struct {
	pipeline.NopObserver
	W *Writer
}

func NewStrokeLog(w io.Writer) (*StrokeLog, error) {
	cw, err := NewWriter(w, stroke.Event{}.CSVHeader())
	if err != nil {
		return nil, err
	}
	return &StrokeLog{W: cw}, nil
}

func (l *StrokeLog) OnStroke(e stroke.Event) { l.W.WriteRow(e.CSVRow()) }

// Files writes base_imu.csv, base_gps.csv and, when present,
// base_calibration.csv and base_strokes.csv into dir. It returns the paths
// written.
func Files(dir, base string, s *codec.Session, strokes []stroke.Event) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	var written []string
	write := func(suffix string, fn func(io.Writer) error) error {
		path := filepath.Join(dir, base+"_"+suffix+".csv")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("csv create %s: %w", path, err)
		}
		bw := bufio.NewWriter(f)
		if err := fn(bw); err != nil {
			f.Close()
			return fmt.Errorf("export %s: %w", path, err)
		}
		if err := bw.Flush(); err != nil {
			f.Close()
			return fmt.Errorf("export %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if err := write("imu", func(w io.Writer) error { return WriteCSV(w, s.IMU) }); err != nil {
		return written, err
	}
	if err := write("gps", func(w io.Writer) error { return WriteCSV(w, s.GPS) }); err != nil {
		return written, err
	}
	if len(s.CalibrationSamples) > 0 {
		if err := write("calibration", func(w io.Writer) error { return WriteCSV(w, s.CalibrationSamples) }); err != nil {
			return written, err
		}
	}
	if len(strokes) > 0 {
		if err := write("strokes", func(w io.Writer) error { return WriteCSV(w, strokes) }); err != nil {
			return written, err
		}
	}
	return written, nil
}
