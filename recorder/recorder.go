// Package recorder writes device readings to a CSV file.
package recorder

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/d2r2/go-logger"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/westphae/dmp9250/mpu9250"
)

var lg = logger.NewPackageLogger("recorder", logger.InfoLevel)

// Header names the recorded columns, in order.
var Header = []string{
	"time",
	"ax", "ay", "az",
	"gx", "gy", "gz",
	"mx", "my", "mz",
	"qw", "qx", "qy", "qz",
	"temperature",
	"pitch", "roll", "yaw", "heading",
	"tap_direction", "tap_count", "orientation",
}

// Recorder is a buffered CSV writer of Readings, safe for concurrent use.
// Rows reach the file on Flush or Close.
type Recorder struct {
	mu   sync.Mutex
	c    io.Closer
	buf  *bufio.Writer
	csv  *csv.Writer
	rows uint64
	row  []string
}

// Create truncates or creates filename and writes the header row.
func Create(filename string) (*Recorder, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, errors.Wrap(err, "creating recording")
	}
	r, err := New(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	lg.Infof("recording to %s", filename)
	return r, nil
}

// New records to w. Close closes w when it is an io.Closer.
func New(w io.Writer) (*Recorder, error) {
	buf := bufio.NewWriterSize(w, 64*1024)
	r := &Recorder{
		buf: buf,
		csv: csv.NewWriter(buf),
		row: make([]string, len(Header)),
	}
	if c, ok := w.(io.Closer); ok {
		r.c = c
	}
	if err := r.csv.Write(Header); err != nil {
		return nil, errors.Wrap(err, "writing header")
	}
	return r, nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// Write appends one row.
func (r *Recorder) Write(rd mpu9250.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := r.row[:0]
	row = append(row, rd.Time.Format(time.RFC3339Nano))
	for _, v := range rd.Accel {
		row = append(row, ftoa(v))
	}
	for _, v := range rd.Gyro {
		row = append(row, ftoa(v))
	}
	for _, v := range rd.Mag {
		row = append(row, ftoa(v))
	}
	for _, v := range rd.Quat {
		row = append(row, ftoa(v))
	}
	row = append(row, ftoa(rd.Temperature), ftoa(rd.Pitch), ftoa(rd.Roll), ftoa(rd.Yaw), ftoa(rd.Heading))
	if rd.Tap != nil {
		row = append(row, strconv.Itoa(int(rd.Tap.Direction)), strconv.Itoa(int(rd.Tap.Count)))
	} else {
		row = append(row, "", "")
	}
	row = append(row, strconv.Itoa(int(rd.Orientation)))
	if err := r.csv.Write(row); err != nil {
		return errors.Wrap(err, "writing row")
	}
	r.rows++
	return nil
}

// Rows returns the number of rows written, excluding the header.
func (r *Recorder) Rows() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows
}

// Flush pushes buffered rows to the underlying writer.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flush()
}

func (r *Recorder) flush() error {
	r.csv.Flush()
	return multierr.Append(errors.Wrap(r.csv.Error(), "encoding csv"), errors.Wrap(r.buf.Flush(), "flushing recording"))
}

// Close flushes and closes the recording.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.flush()
	if r.c != nil {
		err = multierr.Append(err, r.c.Close())
	}
	lg.Debugf("recording closed after %d rows", r.rows)
	return err
}
