package csvsource

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"predeval/internal/domain/models"
	"predeval/internal/domain/repository"
	"predeval/pkg/logger"
	"predeval/pkg/util"
)

const (
	primaryFileName  = "my_predictions_history.csv"
	fallbackFileName = "miner_predictions_history.csv"
)

// Source reads miner prediction history from flat CSV files laid out as
// <dataDir>/<miner>/my_predictions_history.csv. Assets are discovered from
// `<asset>_prediction` columns.
type Source struct {
	dataDir string
	log     *logger.Logger
}

// New creates a CSV-backed prediction source.
func New(dataDir string, log *logger.Logger) *Source {
	return &Source{dataDir: dataDir, log: log}
}

// FilePath resolves the history file for a miner, preferring the primary
// file name.
func (s *Source) FilePath(miner string) string {
	primary := filepath.Join(s.dataDir, miner, primaryFileName)
	if _, err := os.Stat(primary); err == nil {
		return primary
	}
	return filepath.Join(s.dataDir, miner, fallbackFileName)
}

// Miners scans the data directory for miner subdirectories that contain a
// history file.
func (s *Source) Miners(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir %s: %v", repository.ErrSourceUnavailable, s.dataDir, err)
	}

	var miners []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(s.FilePath(e.Name())); err == nil {
			miners = append(miners, e.Name())
		}
	}
	sort.Strings(miners)
	return miners, nil
}

// Assets returns the canonical asset names present in a miner's file.
func (s *Source) Assets(_ context.Context, miner string) ([]string, error) {
	header, _, err := s.read(miner, 1)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var assets []string
	for _, col := range header {
		raw, ok := assetOfColumn(col)
		if !ok {
			continue
		}
		asset := models.NormalizeAsset(raw)
		if _, dup := seen[asset]; dup {
			continue
		}
		seen[asset] = struct{}{}
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets, nil
}

// ListPredictions returns the miner's forecast records for one asset in
// file order. Rows with a missing timestamp or prediction are skipped.
func (s *Source) ListPredictions(_ context.Context, miner, asset string) ([]models.PredictionRecord, error) {
	asset = models.NormalizeAsset(asset)
	header, rows, err := s.read(miner, 0)
	if err != nil {
		return nil, err
	}

	cols := indexColumns(header, asset)
	if cols.prediction < 0 || cols.timestamp < 0 {
		return nil, nil
	}

	records := make([]models.PredictionRecord, 0, len(rows))
	for _, row := range rows {
		ts, ok := util.ParseTime(cell(row, cols.timestamp))
		if !ok {
			continue
		}
		predicted, err := strconv.ParseFloat(cell(row, cols.prediction), 64)
		if err != nil {
			continue
		}

		rec := models.PredictionRecord{
			Asset:          asset,
			MinerID:        miner,
			PredictionTime: ts.UTC(),
			Predicted:      predicted,
		}
		if v, err := strconv.ParseFloat(cell(row, cols.lower), 64); err == nil {
			rec.IntervalLower = &v
		}
		if v, err := strconv.ParseFloat(cell(row, cols.upper), 64); err == nil {
			rec.IntervalUpper = &v
		}
		records = append(records, rec)
	}
	return records, nil
}

// read opens the miner's file and returns the header plus up to maxRows
// data rows (0 means all).
func (s *Source) read(miner string, maxRows int) ([]string, [][]string, error) {
	path := s.FilePath(miner)
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open %s: %v", repository.ErrSourceUnavailable, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("%w: read header %s: %v", repository.ErrSourceUnavailable, path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for maxRows <= 0 || len(rows) < maxRows {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// one malformed row should not sink the file
			if s.log != nil {
				s.log.Warn("skipping malformed csv row",
					logger.String("miner", miner),
					logger.Error(err),
				)
			}
			continue
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

type columnIndex struct {
	timestamp  int
	prediction int
	lower      int
	upper      int
}

// indexColumns locates the timestamp and per-asset columns for a canonical
// asset name, honoring source-side aliases like tao_bittensor.
func indexColumns(header []string, asset string) columnIndex {
	cols := columnIndex{timestamp: -1, prediction: -1, lower: -1, upper: -1}
	datetime := -1

	for i, col := range header {
		lc := strings.ToLower(col)
		switch lc {
		case "timestamp":
			cols.timestamp = i
			continue
		case "datetime":
			datetime = i
			continue
		}

		if raw, ok := assetOfColumn(lc); ok {
			if models.NormalizeAsset(raw) == asset {
				cols.prediction = i
			}
			continue
		}
		if raw, ok := strings.CutSuffix(lc, "_interval_lower"); ok {
			if models.NormalizeAsset(raw) == asset {
				cols.lower = i
			}
			continue
		}
		if raw, ok := strings.CutSuffix(lc, "_interval_upper"); ok {
			if models.NormalizeAsset(raw) == asset {
				cols.upper = i
			}
		}
	}

	if cols.timestamp < 0 {
		cols.timestamp = datetime
	}
	return cols
}

// assetOfColumn extracts the asset prefix from a `<asset>_prediction`
// column. Raw model outputs (`_raw_prediction`) are not forecasts.
func assetOfColumn(col string) (string, bool) {
	lc := strings.ToLower(col)
	if strings.HasSuffix(lc, "_raw_prediction") {
		return "", false
	}
	raw, ok := strings.CutSuffix(lc, "_prediction")
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
