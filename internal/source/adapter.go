package source

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/okishio-lab/profitrate-cli/internal/fetcher"
	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// ErrFormat means a declared extraction rule does not match the file's
// actual shape. Fatal for that source, non-fatal for the run.
var ErrFormat = eris.New("source format mismatch")

// Load reads the file named by a descriptor into an observation set in
// the source's declared native unit. The unit comes from the units
// config, never from the file.
func Load(ctx context.Context, desc Descriptor, unit model.Unit) (*model.ObservationSet, error) {
	log := zap.L().With(
		zap.String("component", "source"),
		zap.String("source", desc.SourceID),
		zap.String("variable", desc.VariableID),
	)

	rows, err := readRows(ctx, desc)
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, eris.Wrapf(ErrFormat, "%s: need a header row and at least one data row, got %d rows",
			desc.Path, len(rows))
	}

	var obs []model.Observation
	switch desc.Layout {
	case LayoutWide:
		obs, err = extractWide(desc, unit, rows)
	case LayoutLong:
		obs, err = extractLong(desc, unit, rows)
	default:
		return nil, eris.Errorf("source: %s/%s: unknown layout %q", desc.SourceID, desc.VariableID, desc.Layout)
	}
	if err != nil {
		return nil, err
	}

	set, err := model.NewObservationSet(desc.VariableID, desc.SourceID, unit, obs)
	if err != nil {
		return nil, eris.Wrapf(ErrFormat, "%s: %s", desc.Path, err.Error())
	}

	log.Debug("loaded source",
		zap.Int("observations", len(set.Observations)),
		zap.String("unit", string(unit)),
	)
	return set, nil
}

func readRows(ctx context.Context, desc Descriptor) ([][]string, error) {
	if strings.EqualFold(filepath.Ext(desc.Path), ".xlsx") {
		return fetcher.ReadXLSX(desc.Path, fetcher.XLSXOptions{
			SheetName: desc.Sheet,
			SkipRows:  desc.SkipRows,
		})
	}

	r, err := fetcher.Open(ctx, desc.Path, fetcher.FileOptions{Encoding: desc.Encoding})
	if err != nil {
		return nil, err
	}
	defer r.Close()

	opts := fetcher.CSVOptions{TrimSpace: true, LazyQuotes: true}
	if desc.Delimiter != "" {
		opts.Delimiter = rune(desc.Delimiter[0])
	}
	rows, err := fetcher.ReadCSV(r, opts)
	if err != nil {
		return nil, eris.Wrapf(ErrFormat, "%s: %s", desc.Path, err.Error())
	}
	if desc.SkipRows > 0 && desc.SkipRows < len(rows) {
		rows = rows[desc.SkipRows:]
	}
	return rows, nil
}

// extractWide handles variable-as-row, year-as-column tables. The header
// row must be all-numeric years after the label column.
func extractWide(desc Descriptor, unit model.Unit, rows [][]string) ([]model.Observation, error) {
	header := rows[0]
	if len(header) < 2 {
		return nil, eris.Wrapf(ErrFormat, "%s: wide header has %d columns, need label plus years",
			desc.Path, len(header))
	}

	years := make([]int, 0, len(header)-1)
	for i, cell := range header[1:] {
		y, err := strconv.Atoi(strings.TrimSpace(cell))
		if err != nil {
			return nil, eris.Wrapf(ErrFormat, "%s: header column %d is %q, not a year",
				desc.Path, i+1, cell)
		}
		years = append(years, y)
	}

	label := desc.Label()
	for _, row := range rows[1:] {
		if len(row) == 0 || !strings.EqualFold(strings.TrimSpace(row[0]), label) {
			continue
		}
		if len(row) != len(header) {
			return nil, eris.Wrapf(ErrFormat, "%s: row %q has %d columns, header has %d",
				desc.Path, label, len(row), len(header))
		}

		var obs []model.Observation
		for i, cell := range row[1:] {
			year := years[i]
			if !desc.inRange(year) {
				continue
			}
			value, missing, err := parseValue(cell)
			if err != nil {
				return nil, eris.Wrapf(ErrFormat, "%s: year %d: %s", desc.Path, year, err.Error())
			}
			o := model.Observation{
				VariableID: desc.VariableID,
				Year:       year,
				Unit:       unit,
				SourceID:   desc.SourceID,
			}
			if !missing {
				o.Value = model.Float(value)
			}
			obs = append(obs, o)
		}
		return obs, nil
	}

	return nil, eris.Wrapf(ErrFormat, "%s: no row labeled %q", desc.Path, label)
}

// extractLong handles explicit year,variable,value tables. Column order
// is resolved from the header, case-insensitively.
func extractLong(desc Descriptor, unit model.Unit, rows [][]string) ([]model.Observation, error) {
	header := rows[0]
	yearIdx, varIdx, valIdx := -1, -1, -1
	for i, cell := range header {
		switch strings.ToLower(strings.TrimSpace(cell)) {
		case "year":
			yearIdx = i
		case "variable":
			varIdx = i
		case "value":
			valIdx = i
		}
	}
	if yearIdx < 0 || varIdx < 0 || valIdx < 0 {
		return nil, eris.Wrapf(ErrFormat, "%s: long layout needs year, variable, value columns; header is %v",
			desc.Path, header)
	}

	label := desc.Label()
	var obs []model.Observation
	for n, row := range rows[1:] {
		if len(row) <= yearIdx || len(row) <= varIdx || len(row) <= valIdx {
			return nil, eris.Wrapf(ErrFormat, "%s: row %d has %d columns, need at least %d",
				desc.Path, n+2, len(row), max3(yearIdx, varIdx, valIdx)+1)
		}
		if !strings.EqualFold(strings.TrimSpace(row[varIdx]), label) {
			continue
		}
		year, err := strconv.Atoi(strings.TrimSpace(row[yearIdx]))
		if err != nil {
			return nil, eris.Wrapf(ErrFormat, "%s: row %d: year %q is not an integer",
				desc.Path, n+2, row[yearIdx])
		}
		if !desc.inRange(year) {
			continue
		}
		value, missing, err := parseValue(row[valIdx])
		if err != nil {
			return nil, eris.Wrapf(ErrFormat, "%s: row %d: %s", desc.Path, n+2, err.Error())
		}
		o := model.Observation{
			VariableID: desc.VariableID,
			Year:       year,
			Unit:       unit,
			SourceID:   desc.SourceID,
		}
		if !missing {
			o.Value = model.Float(value)
		}
		obs = append(obs, o)
	}

	if len(obs) == 0 {
		return nil, eris.Wrapf(ErrFormat, "%s: no rows for variable %q", desc.Path, label)
	}
	return obs, nil
}

func (d Descriptor) inRange(year int) bool {
	if d.Years == nil {
		return true
	}
	return d.Years.Contains(year)
}

// missingTokens are the conventions the book extractions and agency
// downloads use for "no observation". These mark a year missing; any
// other unparsable cell is a format error.
var missingTokens = map[string]bool{
	"": true, ".": true, "..": true, "-": true,
	"na": true, "n.a.": true, "n/a": true, "nan": true,
}

// parseValue parses a numeric cell, tolerating thousands separators
// from hand-extracted tables ("1,234.5").
func parseValue(cell string) (value float64, missing bool, err error) {
	s := strings.TrimSpace(cell)
	if missingTokens[strings.ToLower(s)] {
		return 0, true, nil
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, eris.Errorf("value %q is not numeric", cell)
	}
	return v, false, nil
}

func max3(a, b, c int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
