package storage

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/bizdir-scraper/pkg/models"
	"github.com/Sriram-PR/bizdir-scraper/pkg/parse"
	"github.com/Sriram-PR/bizdir-scraper/pkg/utils"
)

const (
	listingDirName     = "listing_urls"
	endpointDirName    = "profile_endpoints"
	profileDataDirName = "profile_data"

	listingExt  = ".txt"
	endpointExt = ".csv"

	// EndpointColumn is the single header of a profile endpoint file
	EndpointColumn = "Endpoint"
)

// EndpointStore reads and writes the hand-off artifacts between pipeline stages:
// listing-page URL lists (one URL per line) and profile endpoint lists (single-column CSV).
// Layout: {dataDir}/{country}/listing_urls/{batch}.txt and {dataDir}/{country}/profile_endpoints/{batch}.csv
type EndpointStore struct {
	root string
	log  *logrus.Entry
}

// NewEndpointStore creates a store rooted at {dataDir}/{country}
func NewEndpointStore(dataDir, country string, log *logrus.Entry) *EndpointStore {
	return &EndpointStore{
		root: filepath.Join(dataDir, utils.SanitizeFilename(country)),
		log:  log,
	}
}

// ListingDir returns the directory holding listing URL files
func (s *EndpointStore) ListingDir() string { return filepath.Join(s.root, listingDirName) }

// EndpointDir returns the directory holding profile endpoint files
func (s *EndpointStore) EndpointDir() string { return filepath.Join(s.root, endpointDirName) }

// ProfileDataDir returns the directory the local sink writes record files into
func (s *EndpointStore) ProfileDataDir() string { return filepath.Join(s.root, profileDataDirName) }

// WriteListingURLs replaces the listing URL file for batch. Order is kept; duplicates are dropped.
func (s *EndpointStore) WriteListingURLs(batch string, urls []string) (string, error) {
	path := filepath.Join(s.ListingDir(), utils.SanitizeFilename(batch)+listingExt)
	urls = parse.DedupeURLs(urls)

	err := writeAtomic(path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, u := range urls {
			if _, err := bw.WriteString(u + "\n"); err != nil {
				return err
			}
		}
		return bw.Flush()
	})
	if err != nil {
		return "", err
	}
	s.log.WithField("batch", batch).Infof("Wrote %d listing URLs to %s", len(urls), path)
	return path, nil
}

// ReadListingBatches loads every listing URL file, sorted by batch name.
// A positive limit keeps only the first limit URLs of each batch.
func (s *EndpointStore) ReadListingBatches(limit int) ([]models.ListingBatch, error) {
	paths, err := listFiles(s.ListingDir(), listingExt)
	if err != nil {
		return nil, err
	}

	batches := make([]models.ListingBatch, 0, len(paths))
	for _, path := range paths {
		urls, err := readLines(path)
		if err != nil {
			return nil, err
		}
		if limit > 0 && len(urls) > limit {
			urls = urls[:limit]
		}
		batches = append(batches, models.ListingBatch{
			Name: strings.TrimSuffix(filepath.Base(path), listingExt),
			Path: path,
			URLs: urls,
		})
	}
	return batches, nil
}

// WriteEndpoints replaces the endpoint file for batch with the deduplicated endpoints, first-seen order kept.
func (s *EndpointStore) WriteEndpoints(batch string, endpoints []string) (string, error) {
	path := filepath.Join(s.EndpointDir(), utils.SanitizeFilename(batch)+endpointExt)

	seen := make(map[string]struct{}, len(endpoints))
	unique := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		unique = append(unique, e)
	}

	err := writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{EndpointColumn}); err != nil {
			return err
		}
		for _, e := range unique {
			if err := cw.Write([]string{e}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return "", err
	}
	s.log.WithField("batch", batch).Infof("Wrote %d profile endpoints to %s", len(unique), path)
	return path, nil
}

// ReadProfileEndpoints loads every endpoint file, sorted by batch name; the batch is the file stem.
func (s *EndpointStore) ReadProfileEndpoints() ([]models.ProfileEndpoint, error) {
	paths, err := listFiles(s.EndpointDir(), endpointExt)
	if err != nil {
		return nil, err
	}

	var endpoints []models.ProfileEndpoint
	for _, path := range paths {
		batch := strings.TrimSuffix(filepath.Base(path), endpointExt)
		rows, err := readCSV(path)
		if err != nil {
			return nil, err
		}
		for i, row := range rows {
			if len(row) == 0 {
				continue
			}
			value := strings.TrimSpace(row[0])
			if i == 0 && strings.EqualFold(value, EndpointColumn) {
				continue
			}
			if value == "" {
				continue
			}
			endpoints = append(endpoints, models.ProfileEndpoint{Batch: batch, URL: value})
		}
	}
	return endpoints, nil
}

// listFiles returns the files in dir with the given extension, sorted. A missing dir yields no files.
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading directory %s: %w", utils.ErrFilesystem, dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", utils.ErrFilesystem, path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", utils.ErrFilesystem, path, err)
	}
	return lines, nil
}

// readCSV reads all rows of a CSV file, tolerating rows of differing width. A missing file yields no rows.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", utils.ErrFilesystem, path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: bad CSV in %s: %w", utils.ErrParsing, path, err)
	}
	return rows, nil
}

// writeAtomic writes a file through a temp file in the same directory and renames it into place
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating directory %s: %w", utils.ErrFilesystem, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file for %s: %w", utils.ErrFilesystem, path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // No-op after a successful rename

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: writing %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: syncing %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: closing %s: %w", utils.ErrFilesystem, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: renaming into %s: %w", utils.ErrFilesystem, path, err)
	}
	return nil
}
