package models

import (
	"errors"
	"strings"
	"time"
)

// ListingQuery is the immutable search input for one run
type ListingQuery struct {
	Keyword string `yaml:"keyword" json:"keyword"`
	Region  string `yaml:"region,omitempty" json:"region,omitempty"`
}

// Validate enforces a non-empty keyword
func (q ListingQuery) Validate() error {
	if strings.TrimSpace(q.Keyword) == "" {
		return errors.New("listing query keyword must not be empty")
	}
	return nil
}

// ListingBatch is one persisted list of listing-page URLs; Name is the file stem
type ListingBatch struct {
	Name string
	Path string
	URLs []string
}

// ProfileEndpoint identifies one business profile page and the batch it came from
type ProfileEndpoint struct {
	Batch string
	URL   string
}

// ExtractionFailure is the typed result returned instead of a record when a page cannot be parsed
type ExtractionFailure struct {
	Kind    string `json:"error_kind"`
	Message string `json:"message"`
}

func (f *ExtractionFailure) Error() string {
	return f.Kind + ": " + f.Message
}

// EndpointDBEntry stores the processing outcome of a profile endpoint in the state store
type EndpointDBEntry struct {
	Status      EndpointStatus `json:"status"`
	Batch       string         `json:"batch"`
	ErrorType   string         `json:"error_type,omitempty"`   // Error category (on failure)
	DedupKey    string         `json:"dedup_key,omitempty"`    // Key the persisted record was indexed under
	ProcessedAt time.Time      `json:"processed_at,omitempty"` // Timestamp of successful processing
	LastAttempt time.Time      `json:"last_attempt"`
	Attempts    int            `json:"attempts"`
}

// HarvestSummary reports what the endpoint harvester wrote per batch
type HarvestSummary struct {
	Batches      int
	ListingPages int
	FailedPages  int
	Endpoints    int
	OutputFiles  []string
}

// ProcessorStats is the reporting-only tally of a profile processor run
type ProcessorStats struct {
	Total      int
	Skipped    int // Already processed in a previous run
	Succeeded  int
	Duplicates int
	Failed     int
	Requeued   int // Enqueued after a context teardown
	Recovered  int // Succeeded during the retry replay
	Lost       int // Still failing after the replay
}
