// Package store records displayed readings to daily CSV files and reads
// them back for the history viewer. Files are <dir>/YYYY-MM-DD.csv.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/luki/farmdash/internal/reading"
)

const (
	timeLayout = time.RFC3339
	fileLayout = "2006-01-02"
)

// Columns is the CSV header.
var Columns = []string{
	"recorded_at", "device_id", "timestamp",
	"temperature", "humidity", "soil_moisture", "light", "rain", "co2",
	"ml_prediction",
}

// metric columns in file order
var metricColumns = []reading.Metric{
	reading.Temperature, reading.Humidity, reading.SoilMoisture,
	reading.Light, reading.Rain, reading.CO2,
}

// Row is one recorded reading.
type Row struct {
	RecordedAt time.Time
	Reading    reading.Reading
}

// DiskStore appends readings that are newer than anything already recorded
// for the same device. It is not safe for concurrent use.
type DiskStore struct {
	dir     string
	current *os.File
	writer  *csv.Writer
	curDate string

	last map[string]time.Time // newest recorded timestamp per device id
}

// New creates the data directory if needed.
func New(dir string) (*DiskStore, error) {
	if dir == "" {
		return nil, errors.New("empty data dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create data dir: %w", err)
	}
	return &DiskStore{dir: dir, last: make(map[string]time.Time)}, nil
}

// Dir is the data directory.
func (d *DiskStore) Dir() string { return d.dir }

// Write appends the not yet recorded readings of a newest-first batch to the
// file for day at, oldest first. Readings without a parseable timestamp are
// not recorded. It returns the number of rows written.
func (d *DiskStore) Write(rs []reading.Reading, at time.Time) (int, error) {
	if err := d.open(at); err != nil {
		return 0, err
	}

	recordedAt := at.Format(timeLayout)
	written := 0
	for i := len(rs) - 1; i >= 0; i-- {
		r := rs[i]
		if !d.isNew(r) {
			continue
		}
		if err := d.writer.Write(encode(r, recordedAt)); err != nil {
			return written, err
		}
		d.mark(r)
		written++
	}
	d.writer.Flush()
	return written, d.writer.Error()
}

func (d *DiskStore) isNew(r reading.Reading) bool {
	if r.Timestamp.IsZero() {
		return false
	}
	last, ok := d.last[r.DeviceID]
	return !ok || r.Timestamp.After(last)
}

func (d *DiskStore) mark(r reading.Reading) {
	if d.isNew(r) {
		d.last[r.DeviceID] = r.Timestamp
	}
}

// open switches to the file for the day of at. On the first open of an
// existing file the newest recorded timestamp is restored.
func (d *DiskStore) open(at time.Time) error {
	dateStr := at.Format(fileLayout)
	if d.curDate == dateStr && d.current != nil {
		return nil
	}
	d.Close()

	path := filepath.Join(d.dir, dateStr+".csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	d.current = f
	d.writer = csv.NewWriter(f)
	d.curDate = dateStr

	if info.Size() == 0 {
		return d.writer.Write(Columns)
	}
	if len(d.last) == 0 {
		rows, err := readRows(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		for _, row := range rows {
			d.mark(row.Reading)
		}
	}
	return nil
}

// Close flushes and closes the current file.
func (d *DiskStore) Close() error {
	if d.writer != nil {
		d.writer.Flush()
	}
	if d.current == nil {
		return nil
	}
	err := d.current.Close()
	d.current = nil
	return err
}

func encode(r reading.Reading, recordedAt string) []string {
	rec := make([]string, 0, len(Columns))
	rec = append(rec, recordedAt, r.DeviceID, r.Timestamp.UTC().Format(timeLayout))
	for _, m := range metricColumns {
		v := r.Value(m)
		if math.IsNaN(v) {
			rec = append(rec, "")
			continue
		}
		rec = append(rec, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return append(rec, r.Prediction.Encode())
}

// ListDays returns the recorded dates, newest first.
func ListDays(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var days []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		day := strings.TrimSuffix(name, ".csv")
		if _, err := time.Parse(fileLayout, day); err != nil {
			continue
		}
		days = append(days, day)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}

// LoadDay reads the rows recorded on day.
func LoadDay(dir, day string) ([]Row, error) {
	return LoadFile(filepath.Join(dir, day+".csv"))
}

// LoadFile reads all rows of a CSV log, oldest first. Lines that cannot be
// parsed are skipped.
func LoadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readRows(f)
}

func readRows(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	var rows []Row
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == Columns[0] {
			continue
		}
		if len(rec) < len(Columns) {
			continue
		}
		recordedAt, err := time.Parse(timeLayout, rec[0])
		if err != nil {
			continue
		}

		raw := map[string]any{"device_id": rec[1], "timestamp": rec[2]}
		for j, m := range metricColumns {
			if s := rec[3+j]; s != "" {
				raw[m.Key()] = s
			}
		}
		if s := rec[len(Columns)-1]; s != "" {
			raw["ml_prediction"] = s
		}

		rd, err := reading.FromMap(raw)
		if err != nil {
			continue
		}
		rows = append(rows, Row{RecordedAt: recordedAt, Reading: rd})
	}
	return rows, nil
}
