package report

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/okishio-lab/profitrate-cli/internal/model"
)

// Write emits report.json plus one CSV per reconciled variable into the
// output directory. Output is byte-stable for identical inputs: sorted
// years, shortest round-trippable float formatting.
func Write(r *model.ReconciliationReport, series map[string]*model.VariableSeries, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return eris.Wrapf(err, "report: create output dir %s", outputDir)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return eris.Wrap(err, "report: marshal report")
	}
	reportPath := filepath.Join(outputDir, "report.json")
	if err := os.WriteFile(reportPath, append(data, '\n'), 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", reportPath)
	}

	for _, sum := range r.Series {
		s, ok := series[sum.VariableID]
		if !ok {
			continue
		}
		if err := writeSeriesCSV(s, outputDir); err != nil {
			return err
		}
	}

	zap.L().Info("wrote reconciliation output",
		zap.String("component", "report"),
		zap.String("dir", outputDir),
		zap.Int("variables", len(r.Series)),
	)
	return nil
}

func writeSeriesCSV(s *model.VariableSeries, outputDir string) error {
	path := filepath.Join(outputDir, s.VariableID+".csv")
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"year", "value", "unit", "source_id", "resolution_method"}); err != nil {
		return eris.Wrapf(err, "report: write header %s", path)
	}
	for _, year := range s.Years() {
		p, _ := s.Point(year)
		record := []string{
			strconv.Itoa(p.Year),
			strconv.FormatFloat(p.Value, 'g', -1, 64),
			string(s.Unit),
			p.SourceID,
			string(p.Method),
		}
		if err := w.Write(record); err != nil {
			return eris.Wrapf(err, "report: write row %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "report: flush %s", path)
	}
	return nil
}
