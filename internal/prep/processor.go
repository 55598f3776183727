package prep

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"loadcast/internal/dataset"
	xhttp "loadcast/pkg/http"
	"loadcast/pkg/logger"
	"loadcast/pkg/util"
)

// Processor turns a raw CSV source into a cleaned, feature-enriched frame.
type Processor struct {
	rawDir       string
	processedDir string
	client       *xhttp.Client
	logger       *logger.Logger
}

// NewProcessor creates a Processor writing artifacts under the given dirs.
func NewProcessor(rawDir, processedDir string, client *xhttp.Client, log *logger.Logger) *Processor {
	if client == nil {
		client = xhttp.NewClient(xhttp.WithTimeout(30 * time.Second))
	}
	return &Processor{
		rawDir:       rawDir,
		processedDir: processedDir,
		client:       client,
		logger:       log,
	}
}

// Process resolves source, cleans it, derives calendar features and writes
// the processed CSV. Returns the frame and the processed file path.
// Re-running on the same input produces byte-identical output.
func (p *Processor) Process(ctx context.Context, source, datetimeCol, valueCol string) (*dataset.Frame, string, error) {
	localPath, err := p.resolve(ctx, source)
	if err != nil {
		return nil, "", err
	}

	header, records, err := readRawCSV(localPath)
	if err != nil {
		return nil, "", err
	}

	dtIdx, valIdx := indexOf(header, datetimeCol), indexOf(header, valueCol)
	if dtIdx < 0 {
		return nil, "", fmt.Errorf("%w: column %q not in source", ErrSchemaMismatch, datetimeCol)
	}
	if valIdx < 0 {
		return nil, "", fmt.Errorf("%w: column %q not in source", ErrSchemaMismatch, valueCol)
	}

	times, err := parseTimes(records, dtIdx)
	if err != nil {
		return nil, "", err
	}

	values := make([]float64, len(records))
	coerced := 0
	for i, rec := range records {
		v, err := strconv.ParseFloat(cell(rec, valIdx), 64)
		if err != nil {
			values[i] = math.NaN()
			coerced++
			continue
		}
		values[i] = v
	}
	if coerced > 0 {
		p.logger.Warn("non-numeric values coerced to missing",
			logger.String("column", valueCol), logger.Int("count", coerced))
	}

	frame := dataset.New(datetimeCol)
	frame.Times = times
	if err := frame.AddColumn(valueCol, values); err != nil {
		return nil, "", err
	}

	frame.SortByTime()
	if removed := frame.DedupTimes(); removed > 0 {
		p.logger.Warn("duplicate timestamps dropped, first kept",
			logger.Int("count", removed))
	}

	p.impute(frame, valueCol)
	frame.AddCalendarFeatures()

	processedPath := filepath.Join(p.processedDir, processedName(localPath))
	if err := frame.WriteCSV(processedPath); err != nil {
		return nil, "", fmt.Errorf("write processed file: %w", err)
	}

	if err := p.snapshotRaw(localPath); err != nil {
		return nil, "", err
	}

	p.logger.Info("data preparation complete",
		logger.String("source", source),
		logger.Int("rows", frame.Len()),
		logger.String("processed", processedPath))

	return frame, processedPath, nil
}

// Resolve checks that the source reference points at readable data without
// processing it.
func (p *Processor) Resolve(ctx context.Context, source string) error {
	if isURL(source) {
		return nil // verified at fetch time
	}
	_, err := p.resolveLocal(source)
	return err
}

// resolve returns a local file path for the source, fetching URLs into RawDir.
func (p *Processor) resolve(ctx context.Context, source string) (string, error) {
	if isURL(source) {
		return p.fetch(ctx, source)
	}
	return p.resolveLocal(source)
}

func (p *Processor) resolveLocal(source string) (string, error) {
	candidates := []string{source}
	if !filepath.IsAbs(source) {
		candidates = append(candidates, filepath.Join(p.rawDir, source))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSourceNotFound, source)
}

func (p *Processor) fetch(ctx context.Context, source string) (string, error) {
	if err := os.MkdirAll(p.rawDir, 0o755); err != nil {
		return "", fmt.Errorf("create raw dir: %w", err)
	}
	name := filepath.Base(source)
	if name == "" || name == "." || name == "/" {
		name = "download.csv"
	}
	dest := filepath.Join(p.rawDir, name)

	file, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create raw snapshot: %w", err)
	}
	defer file.Close()

	err = p.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    source,
	}, io.Writer(file))
	if err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("%w: fetch %s: %v", ErrSourceNotFound, source, err)
	}
	return dest, nil
}

// snapshotRaw copies a local source into RawDir when it lives elsewhere, so
// every run's input is recoverable from the data directory.
func (p *Processor) snapshotRaw(localPath string) error {
	absRaw, err := filepath.Abs(p.rawDir)
	if err != nil {
		return err
	}
	absSrc, err := filepath.Abs(localPath)
	if err != nil {
		return err
	}
	if strings.HasPrefix(absSrc, absRaw+string(filepath.Separator)) {
		return nil
	}

	if err := os.MkdirAll(p.rawDir, 0o755); err != nil {
		return fmt.Errorf("create raw dir: %w", err)
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(p.rawDir, filepath.Base(localPath)))
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy snapshot: %w", err)
	}
	return nil
}

// impute fills missing values: forward fill, then backward fill for a leading
// gap, then zero for anything left (all-missing column).
func (p *Processor) impute(f *dataset.Frame, col string) {
	vals, ok := f.Column(col)
	if !ok {
		return
	}

	ffilled := 0
	for i := 1; i < len(vals); i++ {
		if math.IsNaN(vals[i]) && !math.IsNaN(vals[i-1]) {
			vals[i] = vals[i-1]
			ffilled++
		}
	}

	bfilled := 0
	for i := len(vals) - 2; i >= 0; i-- {
		if math.IsNaN(vals[i]) && !math.IsNaN(vals[i+1]) {
			vals[i] = vals[i+1]
			bfilled++
		}
	}

	zeroed := 0
	for i := range vals {
		if math.IsNaN(vals[i]) {
			vals[i] = 0
			zeroed++
		}
	}

	if ffilled > 0 {
		p.logger.Warn("missing values forward-filled", logger.Int("count", ffilled))
	}
	if bfilled > 0 {
		p.logger.Warn("missing values backward-filled", logger.Int("count", bfilled))
	}
	if zeroed > 0 {
		p.logger.Warn("missing values zero-filled", logger.Int("count", zeroed))
	}
}

func parseTimes(records [][]string, dtIdx int) ([]time.Time, error) {
	times := make([]time.Time, len(records))

	// Strict RFC3339 first; fall back to a layout inferred from the first
	// non-empty cell and applied uniformly.
	strict := true
	for i, rec := range records {
		t, err := time.Parse(time.RFC3339, cell(rec, dtIdx))
		if err != nil {
			strict = false
			break
		}
		times[i] = t
	}
	if strict {
		return times, nil
	}

	var layout string
	for _, rec := range records {
		s := cell(rec, dtIdx)
		if s == "" {
			continue
		}
		l, ok := util.InferLayout(s)
		if !ok {
			return nil, fmt.Errorf("%w: unrecognized value %q", ErrDatetimeParse, s)
		}
		layout = l
		break
	}
	if layout == "" {
		return nil, fmt.Errorf("%w: no datetime values present", ErrDatetimeParse)
	}

	for i, rec := range records {
		s := cell(rec, dtIdx)
		t, err := time.Parse(layout, s)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d value %q does not match layout %q",
				ErrDatetimeParse, i+1, s, layout)
		}
		times[i] = t
	}
	return times, nil
}

// cell returns the trimmed field at idx, or "" when the row is short.
func cell(rec []string, idx int) string {
	if idx >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[idx])
}

func readRawCSV(path string) (header []string, records [][]string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(all) < 2 {
		return nil, nil, fmt.Errorf("%w: %s has no data rows", ErrSchemaMismatch, path)
	}
	return all[0], all[1:], nil
}

func indexOf(header []string, col string) int {
	for i, h := range header {
		if strings.TrimSpace(h) == col {
			return i
		}
	}
	return -1
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func processedName(localPath string) string {
	base := filepath.Base(localPath)
	return "processed_" + base
}
