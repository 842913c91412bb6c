package storage

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const (
	columnTime     = "time"
	columnPrice    = "price"
	columnATHPrice = "ath_price"
)

// FileOptions locate the flat files backing a FileStore.
type FileOptions struct {
	SamplesPath  string
	ATHPath      string
	ChannelsPath string
	// Logger reports rows skipped while reading. The zero value discards.
	Logger zerolog.Logger
}

// FileStore persists the time series and ATH log as semicolon-separated files
// with comma decimals, and the channel registry as a JSON array. Every write
// rewrites the whole file through a rename, so a crash leaves the previous
// content in place.
type FileStore struct {
	opts FileOptions
	mu   sync.Mutex
}

// NewFileStore constructs a FileStore. Files are created lazily.
func NewFileStore(opts FileOptions) *FileStore {
	return &FileStore{opts: opts}
}

// Close is a no-op; files are not held open.
func (s *FileStore) Close() error {
	return nil
}

// AppendSample appends a sample, dropping blank columns left by earlier runs.
func (s *FileStore) AppendSample(_ context.Context, sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, err := readTable(s.opts.SamplesPath)
	if err != nil {
		return err
	}
	tbl = tbl.dropBlankColumns()

	rows := tbl.project(columnTime, columnPrice)
	rows = append(rows, sampleRow(sample))
	return writeTable(s.opts.SamplesPath, []string{columnTime, columnPrice}, rows)
}

// ReadSamples returns every stored sample; a missing or empty file yields none.
func (s *FileStore) ReadSamples(_ context.Context) ([]Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, err := readTable(s.opts.SamplesPath)
	if err != nil {
		return nil, err
	}

	rows := tbl.project(columnTime, columnPrice)
	samples := make([]Sample, 0, len(rows))
	for i, row := range rows {
		sample, err := parseSampleRow(row)
		if err != nil {
			s.skipRow(s.opts.SamplesPath, i+1, err)
			continue
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// skipRow logs a data row that could not be parsed. Rows are numbered from 1,
// not counting the header.
func (s *FileStore) skipRow(path string, row int, err error) {
	s.opts.Logger.Warn().Err(err).Str("path", path).Int("row", row).Msg("skipping malformed row")
}

func parseSampleRow(row []string) (Sample, error) {
	at, err := parseTime(row[0])
	if err != nil {
		return Sample{}, err
	}
	price, err := parsePrice(row[1])
	if err != nil {
		return Sample{}, err
	}
	return Sample{Time: at, Price: price}, nil
}

// CollapseSamples truncates the time series to the given sample.
func (s *FileStore) CollapseSamples(_ context.Context, sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeTable(s.opts.SamplesPath, []string{columnTime, columnPrice}, [][]string{sampleRow(sample)})
}

// AppendATH records a new all-time-high.
func (s *FileStore) AppendATH(_ context.Context, record AthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, err := readTable(s.opts.ATHPath)
	if err != nil {
		return err
	}

	rows := tbl.project(columnTime, columnATHPrice)
	rows = append(rows, []string{record.Time.UTC().Format(TimeLayout), formatPrice(record.Price)})
	return writeTable(s.opts.ATHPath, []string{columnTime, columnATHPrice}, rows)
}

// LatestATH returns the last recorded all-time-high.
func (s *FileStore) LatestATH(_ context.Context) (decimal.Decimal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tbl, err := readTable(s.opts.ATHPath)
	if err != nil {
		return decimal.Decimal{}, false, err
	}

	rows := tbl.project(columnTime, columnATHPrice)
	for i := len(rows) - 1; i >= 0; i-- {
		price, err := parsePrice(rows[i][1])
		if err != nil {
			s.skipRow(s.opts.ATHPath, i+1, err)
			continue
		}
		if price.Valid {
			return price.Decimal, true, nil
		}
	}
	return decimal.Decimal{}, false, nil
}

// AddChannel registers a channel id if it is not already present.
func (s *FileStore) AddChannel(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.loadChannels()
	if err != nil {
		return false, err
	}
	if lo.Contains(ids, id) {
		return false, nil
	}
	if err := s.saveChannels(append(ids, id)); err != nil {
		return false, err
	}
	return true, nil
}

// HasChannel reports whether the channel id is registered.
func (s *FileStore) HasChannel(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.loadChannels()
	if err != nil {
		return false, err
	}
	return lo.Contains(ids, id), nil
}

// ListChannels returns registered ids in registration order.
func (s *FileStore) ListChannels(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadChannels()
}

func (s *FileStore) loadChannels() ([]int64, error) {
	raw, err := os.ReadFile(s.opts.ChannelsPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			ids := []int64{}
			return ids, s.saveChannels(ids)
		}
		return nil, fmt.Errorf("read %s: %w", s.opts.ChannelsPath, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return []int64{}, nil
	}

	var ids []int64
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.opts.ChannelsPath, err)
	}
	return lo.Uniq(ids), nil
}

func (s *FileStore) saveChannels(ids []int64) error {
	return writeFileAtomic(s.opts.ChannelsPath, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(ids)
	})
}

type table struct {
	header []string
	rows   [][]string
}

func readTable(path string) (table, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return table{}, nil
		}
		return table{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return table{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(records) == 0 {
		return table{}, nil
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.TrimSpace(name)
	}
	return table{header: header, rows: records[1:]}, nil
}

// dropBlankColumns removes columns whose values are blank on every row.
func (t table) dropBlankColumns() table {
	if len(t.rows) == 0 {
		return t
	}

	keep := make([]int, 0, len(t.header))
	for col := range t.header {
		blank := true
		for _, row := range t.rows {
			if col < len(row) && !isBlank(row[col]) {
				blank = false
				break
			}
		}
		if !blank {
			keep = append(keep, col)
		}
	}

	out := table{header: make([]string, 0, len(keep)), rows: make([][]string, 0, len(t.rows))}
	for _, col := range keep {
		out.header = append(out.header, t.header[col])
	}
	for _, row := range t.rows {
		projected := make([]string, 0, len(keep))
		for _, col := range keep {
			if col < len(row) {
				projected = append(projected, row[col])
			} else {
				projected = append(projected, "")
			}
		}
		out.rows = append(out.rows, projected)
	}
	return out
}

// project maps rows onto the named columns; missing columns come back blank
// and rows with no timestamp are skipped.
func (t table) project(columns ...string) [][]string {
	index := make(map[string]int, len(t.header))
	for i, name := range t.header {
		index[name] = i
	}

	out := make([][]string, 0, len(t.rows))
	for _, row := range t.rows {
		projected := make([]string, len(columns))
		for i, name := range columns {
			if col, ok := index[name]; ok && col < len(row) {
				projected[i] = strings.TrimSpace(row[col])
			}
		}
		if projected[0] == "" {
			continue
		}
		out = append(out, projected)
	}
	return out
}

func writeTable(path string, header []string, rows [][]string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		writer := csv.NewWriter(w)
		writer.Comma = ';'
		if err := writer.Write(header); err != nil {
			return err
		}
		if err := writer.WriteAll(rows); err != nil {
			return err
		}
		return writer.Error()
	})
}

func writeFileAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func sampleRow(sample Sample) []string {
	price := ""
	if sample.HasPrice() {
		price = formatPrice(sample.Price.Decimal)
	}
	return []string{sample.Time.UTC().Format(TimeLayout), price}
}

func formatPrice(d decimal.Decimal) string {
	return strings.Replace(d.String(), ".", ",", 1)
}

func parsePrice(raw string) (decimal.NullDecimal, error) {
	if isBlank(raw) {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(strings.Replace(strings.TrimSpace(raw), ",", ".", 1))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse price %q: %w", raw, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func parseTime(raw string) (time.Time, error) {
	at, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(raw), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", raw, err)
	}
	return at, nil
}

func isBlank(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "nan", "null", "none":
		return true
	default:
		return false
	}
}

var _ Store = (*FileStore)(nil)
