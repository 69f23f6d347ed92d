package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"SMCScan/internal/domain/models"
	"SMCScan/pkg/util"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// readBarsFile loads bars from a CSV file with the columns
// timestamp,open,high,low,close[,volume].
func readBarsFile(path, symbol string) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readBarsCSV(f, symbol)
}

// readBarsCSV parses bars and skips a leading header row. Timestamps are
// unix seconds, unix milliseconds, RFC3339 or one of timeLayouts, always
// read as UTC.
func readBarsCSV(r io.Reader, symbol string) ([]models.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var bars []models.Bar
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(rec) < 5 {
			return nil, fmt.Errorf("line %d: want at least 5 columns, got %d", line, len(rec))
		}

		ts, err := parseTimestamp(rec[0])
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var vals [5]float64
		for i := 1; i < len(rec) && i <= 5; i++ {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", line, i+1, err)
			}
			vals[i-1] = v
		}
		bars = append(bars, models.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return bars, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 1e12 {
		return time.UnixMilli(n).UTC(), nil
	}
	if t, ok := util.ParseTime(s); ok {
		return t.UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// parseDay accepts a date or an RFC3339 timestamp.
func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UTC(), nil
	}
	return parseTimestamp(s)
}

// barsAfter drops bars at or before t, including the entry bar itself.
func barsAfter(bars []models.Bar, t time.Time) []models.Bar {
	out := bars[:0:0]
	for _, b := range bars {
		if b.Timestamp.After(t) {
			out = append(out, b)
		}
	}
	return out
}
