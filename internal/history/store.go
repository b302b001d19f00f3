// Package history provides storage for past translations. Records are
// append-only: there is no update and no per-record delete, only a bulk
// clear. Listing returns the most recent records first.
//
// The primary abstraction is the [Store] interface. [MemStore] is the
// in-memory implementation used for single-instance deployments and tests;
// [PostgresStore] persists records in a single PostgreSQL table.
package history

import (
	"context"
	"errors"
	"time"
)

// DefaultListLimit is applied when a caller asks for a non-positive number
// of records.
const DefaultListLimit = 50

// ErrDuplicateID is returned when appending a record whose ID already exists.
var ErrDuplicateID = errors.New("history: record with this id already exists")

// Record is one completed translation. Immutable once created; removed only
// by [Store.ClearAll].
type Record struct {
	// ID is a generated UUID.
	ID string `json:"id"`

	// SourceLanguage and TargetLanguage are BCP-47-like codes ("en-US").
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`

	// SourceText is the recognised input; TranslatedText the provider output.
	SourceText     string `json:"sourceText"`
	TranslatedText string `json:"translatedText"`

	// Confidence is the provider's confidence in the translation (0..1).
	Confidence float64 `json:"confidence"`

	// CreatedAt is set by the store on append.
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists translation records.
// Implementations must be safe for concurrent use.
type Store interface {
	// Append stores rec, assigning ID and CreatedAt when unset, and returns
	// the stored record.
	Append(ctx context.Context, rec Record) (Record, error)

	// List returns up to limit records ordered by recency, newest first.
	// Non-positive limits fall back to [DefaultListLimit].
	List(ctx context.Context, limit int) ([]Record, error)

	// ClearAll removes every record. Clearing an empty store is not an error.
	ClearAll(ctx context.Context) error
}

// normalizeLimit applies [DefaultListLimit] to non-positive limits.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
