package opensearch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// ErrMalformed is returned when a response body cannot be interpreted.
var ErrMalformed = errors.New("malformed response")

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d from %s", e.Code, e.URL)
}

// Query holds OpenSearch request parameters. Zero fields are omitted.
type Query struct {
	Count      int
	StartIndex int
	Terms      string
	Start      time.Time
	End        time.Time
	UID        string
}

// Values encodes the query using the standard OpenSearch parameter names.
func (q Query) Values() url.Values {
	v := url.Values{}
	// count=0 is meaningful (totals only), so it is always sent.
	v.Set("count", strconv.Itoa(q.Count))
	if q.StartIndex > 0 {
		v.Set("startIndex", strconv.Itoa(q.StartIndex))
	}
	if q.Terms != "" {
		v.Set("q", q.Terms)
	}
	if !q.Start.IsZero() {
		v.Set("start", q.Start.UTC().Format(time.RFC3339))
	}
	if !q.End.IsZero() {
		v.Set("end", q.End.UTC().Format(time.RFC3339))
	}
	if q.UID != "" {
		v.Set("uid", q.UID)
	}
	return v
}

// Item is one catalogue entry.
type Item struct {
	ID           string
	Title        string
	Published    time.Time
	Updated      time.Time
	SensingStart time.Time
	SensingEnd   time.Time
	Enclosure    string
}

// Result is a parsed search response.
type Result struct {
	TotalResults int
	Items        []Item
	Elapsed      time.Duration
}

// Download describes a (possibly partial) enclosure retrieval.
type Download struct {
	Status  int
	TTFB    time.Duration
	Elapsed time.Duration
	Bytes   int64
}

// Searcher queries a catalogue.
type Searcher interface {
	Search(ctx context.Context, q Query) (*Result, error)
}

// Fetcher retrieves at most limit bytes of a resource.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, limit int64) (*Download, error)
}

// Service is the full client surface used by test cases.
type Service interface {
	Searcher
	Fetcher
}
