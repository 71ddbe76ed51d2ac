package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"cellseg/pkg/segmentation"
)

// Header is the column layout of detection CSV files.
var Header = []string{"frame", "position", "label", "x", "y", "signal", "median", "area"}

// WriteCSV writes dets as CSV with a header row.
func WriteCSV(w io.Writer, dets []segmentation.Detection) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, d := range dets {
		record := []string{
			strconv.Itoa(d.Frame),
			d.Position,
			strconv.Itoa(d.Label),
			formatFloat(d.X),
			formatFloat(d.Y),
			formatFloat(d.Signal),
			formatFloat(d.Median),
			strconv.Itoa(d.Area),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes dets to the file at path.
func WriteCSVFile(path string, dets []segmentation.Detection) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, dets); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV parses a detection table written by WriteCSV.
func ReadCSV(r io.Reader) ([]segmentation.Detection, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("missing header")
	}
	for i, h := range Header {
		if records[0][i] != h {
			return nil, fmt.Errorf("unexpected column %d %q, want %q", i, records[0][i], h)
		}
	}

	dets := make([]segmentation.Detection, 0, len(records)-1)
	for n, rec := range records[1:] {
		d, err := parseRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}
		dets = append(dets, d)
	}
	return dets, nil
}

func parseRecord(rec []string) (segmentation.Detection, error) {
	d := segmentation.Detection{Position: rec[1]}
	var err error
	if d.Frame, err = strconv.Atoi(rec[0]); err != nil {
		return d, fmt.Errorf("frame: %w", err)
	}
	if d.Label, err = strconv.Atoi(rec[2]); err != nil {
		return d, fmt.Errorf("label: %w", err)
	}
	if d.Area, err = strconv.Atoi(rec[7]); err != nil {
		return d, fmt.Errorf("area: %w", err)
	}
	return d, parseFloats(rec[3:7], &d.X, &d.Y, &d.Signal, &d.Median)
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func parseFloats(fields []string, out ...*float64) error {
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return err
		}
		*out[i] = v
	}
	return nil
}
