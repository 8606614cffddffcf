package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"FinGuard/internal/domain/models"
	drepo "FinGuard/internal/domain/repository"
	"FinGuard/pkg/util"
)

// StaticSource reads <dir>/<TICKER>.csv files with a
// Date,Open,High,Low,Close,Volume header. It is the last resort of the
// cascade and returns the newest limit rows regardless of the window.
type StaticSource struct {
	dir string
}

var _ drepo.SourceClient = (*StaticSource)(nil)

func NewStaticSource(dir string) *StaticSource {
	return &StaticSource{dir: dir}
}

func (s *StaticSource) Name() models.Provenance { return models.ProvenanceStaticFallback }

func (s *StaticSource) FetchDaily(ctx context.Context, ticker string, _, _ time.Time, limit int) ([]models.OHLCV, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := strings.ToUpper(ticker) + ".csv"
	if name != filepath.Base(name) {
		return nil, fmt.Errorf("static set: invalid ticker %q", ticker)
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, fmt.Errorf("static set %s: %w", ticker, err)
	}
	defer f.Close()

	rows, err := parseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("static set %s: %w", ticker, err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	if limit > 0 && len(rows) > limit {
		rows = rows[len(rows)-limit:]
	}
	return rows, nil
}

func parseCSV(r io.Reader) ([]models.OHLCV, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	cols := []string{"date", "open", "high", "low", "close", "volume"}
	for _, c := range cols {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var out []models.OHLCV
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		date, ok := util.ParseTime(rec[idx["date"]])
		if !ok {
			return nil, fmt.Errorf("line %d: bad date %q", line, rec[idx["date"]])
		}
		var vals [5]float64
		for i, c := range cols[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx[c]]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %s: %w", line, c, err)
			}
			vals[i] = v
		}
		out = append(out, models.OHLCV{
			Date: date.UTC(), Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4],
		})
	}
	return out, nil
}
