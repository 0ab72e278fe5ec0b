// Package store defines C5: the verdict/report persistence contract.
// internal/store/postgres is the canonical pooled-SQL implementation;
// internal/store/memstore is an in-memory stand-in for tests and
// config-less development runs.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/imgproxy/imgproxy/internal/moderation"
)

// Verdict is one URL's persisted moderation outcome, keyed internally
// by sha256(url) (see internal/urlhash) but addressed by callers via
// the plaintext URL.
type Verdict struct {
	URL string

	// Blocked and Failed are mutually exclusive outcomes of a completed
	// moderation attempt: Blocked means the provider actually returned
	// categories (or the synchronous path decided to block); Failed
	// means the attempt never produced a verdict at all (upload error,
	// job-start error, poll error, or a provider-reported job failure)
	// and Categories is necessarily empty. A row is never both.
	Blocked    bool
	Failed     bool
	Provider   moderation.ProviderTag
	Categories []moderation.Category
	UpdatedAt  time.Time
}

// Report is a user-submitted report of a URL's categories, independent
// of any verdict the store already holds for that URL.
type Report struct {
	ID         uuid.UUID
	URL        string
	Categories []moderation.Category
	UpdatedAt  time.Time
}

// Store is the persistence contract every pipeline operation depends
// on. All operations are safe for concurrent use.
type Store interface {
	// GetVerdicts looks up zero-or-more verdicts by URL in one round
	// trip; URLs with no stored verdict are simply absent from the
	// result, not errored.
	GetVerdicts(ctx context.Context, urls []string) ([]Verdict, error)

	// PutVerdict inserts a verdict, doing nothing if one already exists
	// for this URL (first write wins).
	PutVerdict(ctx context.Context, v Verdict) error

	// UpdateVerdict overwrites every field of an existing verdict.
	UpdateVerdict(ctx context.Context, v Verdict) error

	// PutReport appends a user report, doing nothing if a report with
	// this ID already exists.
	PutReport(ctx context.Context, r Report) error

	// GetReports lists every stored report (admin/describe use).
	GetReports(ctx context.Context) ([]Report, error)

	// GetAllVerdicts lists every stored verdict, backing the wildcard
	// `describe {urls:["*"]}` supplement (see SPEC_FULL.md §4.5).
	GetAllVerdicts(ctx context.Context) ([]Verdict, error)
}
