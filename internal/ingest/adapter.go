package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hbarker/grant-radar/internal/models"
)

// ErrorKind is the closed set of crawl failure classes. Every adapter error
// surfaced to the orchestrator is one of these; raw errors never cross the
// adapter boundary unclassified.
type ErrorKind string

const (
	ErrKindTransport ErrorKind = "transport" // timeout, non-2xx, DNS/conn failure
	ErrKindParse     ErrorKind = "parse"     // expected structure absent or malformed
	ErrKindEmpty     ErrorKind = "empty"     // fetch fine, zero records extracted
)

// CrawlError is a classified per-source failure.
type CrawlError struct {
	Kind   ErrorKind
	Source string
	Err    error
}

func (e *CrawlError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *CrawlError) Unwrap() error { return e.Err }

func transportError(source string, err error) *CrawlError {
	return &CrawlError{Kind: ErrKindTransport, Source: source, Err: err}
}

func parseError(source string, err error) *CrawlError {
	return &CrawlError{Kind: ErrKindParse, Source: source, Err: err}
}

func emptyResultError(source string) *CrawlError {
	return &CrawlError{Kind: ErrKindEmpty, Source: source, Err: errors.New("zero records extracted")}
}

// Classify wraps an arbitrary error as a CrawlError, passing through errors
// that are already classified. Unrecognized errors default to parse failures:
// transport problems are classified at the fetch call sites.
func Classify(source string, err error) *CrawlError {
	var ce *CrawlError
	if errors.As(err, &ce) {
		return ce
	}
	return parseError(source, err)
}

// OutcomeError is the serializable form of a CrawlError carried on a
// CrawlOutcome. Messages are capped at maxOutcomeErrorLen: they end up in
// API responses and audit rows, and fetch errors can embed whole URLs or
// response bodies.
type OutcomeError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

const maxOutcomeErrorLen = 500

func newOutcomeError(ce *CrawlError) *OutcomeError {
	return &OutcomeError{Kind: ce.Kind, Message: truncateText(ce.Error(), maxOutcomeErrorLen)}
}

// CrawlOutcome is the per-source result of one orchestrator run. It is
// always a value: adapter failures are reported here, never propagated.
type CrawlOutcome struct {
	Source        string        `json:"source"`
	FetchedCount  int           `json:"fetched_count"`
	UpsertedCount int           `json:"upserted_count"`
	Error         *OutcomeError `json:"error,omitempty"`
}

// SourceAdapter is the contract every source implements: one or more network
// fetches against a single external site, mapped into normalized records.
// Adapters are pure functions of "now" plus external site state; they hold
// no mutable state and share nothing with their siblings.
type SourceAdapter interface {
	// Source returns the stable source tag used in external IDs.
	Source() string

	// Fetch retrieves and normalizes the source's current listings.
	// A non-nil error is always a *CrawlError.
	Fetch(ctx context.Context) ([]models.NormalizedGrant, error)
}

// combinedText joins the fields the scorer and local-match heuristics search
// over, lowercased once.
func combinedText(title, description string, eligibility []string) string {
	parts := []string{title, description}
	parts = append(parts, eligibility...)
	return strings.ToLower(strings.Join(parts, " "))
}
