package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

const profileDataSuffix = "_profile_data.csv"

// csvFile is the in-memory view of one batch's output file
type csvFile struct {
	path   string
	header []string
	keys   map[string]struct{} // Normalized dedup keys already written
}

// CSVSink appends records to {dir}/{batch}_profile_data.csv.
// The header is the record's columns, grown in first-seen order when a record brings new keys;
// on growth the file is rewritten with earlier rows padded with the unavailable sentinel.
type CSVSink struct {
	dir         string
	dedupFields []string
	log         *logrus.Entry

	mu    sync.Mutex
	files map[string]*csvFile
}

// NewCSVSink creates a local file sink. dedupFields is the per-site dedup key priority.
func NewCSVSink(dir string, dedupFields []string, log *logrus.Entry) *CSVSink {
	return &CSVSink{
		dir:         dir,
		dedupFields: dedupFields,
		log:         log,
		files:       make(map[string]*csvFile),
	}
}

// PathFor returns the output file path for batch
func (s *CSVSink) PathFor(batch string) string {
	return filepath.Join(s.dir, utils.SanitizeFilename(batch)+profileDataSuffix)
}

// Persist implements Sink
func (s *CSVSink) Persist(ctx context.Context, batch string, rec *models.Record) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load(batch)
	if err != nil {
		return false, err
	}

	key := utils.NormalizeDedupKey(rec.DedupKey(s.dedupFields))
	if key != "" {
		if _, dup := f.keys[key]; dup {
			s.log.WithFields(logrus.Fields{"batch": batch, "dedup_key": key}).Info("Duplicate record, skipping")
			return false, nil
		}
	}

	if f.header == nil {
		f.header = rec.Keys()
		if err := s.rewrite(f, nil); err != nil {
			return false, err
		}
	} else if extra := missingColumns(f.header, rec); len(extra) > 0 {
		s.log.WithField("batch", batch).Infof("Schema grows by %d column(s): %s", len(extra), strings.Join(extra, ", "))
		rows, err := readCSV(f.path)
		if err != nil {
			return false, err
		}
		if len(rows) > 0 {
			rows = rows[1:]
		}
		f.header = append(f.header, extra...)
		if err := s.rewrite(f, rows); err != nil {
			return false, err
		}
	}

	if err := s.appendRow(f, rowFor(f.header, rec)); err != nil {
		return false, err
	}
	if key != "" {
		f.keys[key] = struct{}{}
	}
	return true, nil
}

// Close implements Sink
func (s *CSVSink) Close() error { return nil }

// load returns the cached view of batch's file, seeding it from disk on first touch
func (s *CSVSink) load(batch string) (*csvFile, error) {
	if f, ok := s.files[batch]; ok {
		return f, nil
	}

	f := &csvFile{path: s.PathFor(batch), keys: make(map[string]struct{})}
	rows, err := readCSV(f.path)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		f.header = rows[0]
		for _, row := range rows[1:] {
			if key := utils.NormalizeDedupKey(rowDedupKey(f.header, row, s.dedupFields)); key != "" {
				f.keys[key] = struct{}{}
			}
		}
		s.log.WithField("batch", batch).Debugf("Seeded %d dedup keys from %s", len(f.keys), f.path)
	}
	s.files[batch] = f
	return f, nil
}

// rewrite replaces the file with the current header followed by rows padded to its width
func (s *CSVSink) rewrite(f *csvFile, rows [][]string) error {
	return writeAtomic(f.path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(f.header); err != nil {
			return err
		}
		for _, row := range rows {
			if err := cw.Write(padRow(row, len(f.header))); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

func (s *CSVSink) appendRow(f *csvFile, row []string) error {
	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: opening %s for append: %w", utils.ErrFilesystem, f.path, err)
	}
	cw := csv.NewWriter(file)
	if err := cw.Write(row); err != nil {
		file.Close()
		return fmt.Errorf("%w: writing row to %s: %w", utils.ErrFilesystem, f.path, err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		file.Close()
		return fmt.Errorf("%w: flushing %s: %w", utils.ErrFilesystem, f.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", utils.ErrFilesystem, f.path, err)
	}
	return nil
}

// missingColumns returns rec's keys absent from header, in rec's order
func missingColumns(header []string, rec *models.Record) []string {
	known := make(map[string]struct{}, len(header))
	for _, h := range header {
		known[h] = struct{}{}
	}
	var extra []string
	for _, k := range rec.Keys() {
		if _, ok := known[k]; !ok {
			extra = append(extra, k)
		}
	}
	return extra
}

func rowFor(header []string, rec *models.Record) []string {
	row := make([]string, len(header))
	for i, col := range header {
		row[i] = rec.Value(col)
	}
	return row
}

func padRow(row []string, width int) []string {
	if len(row) >= width {
		return row
	}
	padded := make([]string, width)
	copy(padded, row)
	for i := len(row); i < width; i++ {
		padded[i] = models.Unavailable
	}
	return padded
}

// rowDedupKey applies the dedup priority to a row read back from disk
func rowDedupKey(header, row []string, fields []string) string {
	for _, field := range fields {
		for i, col := range header {
			if col == field && i < len(row) && models.IsAvailable(row[i]) {
				return row[i]
			}
		}
	}
	return ""
}
