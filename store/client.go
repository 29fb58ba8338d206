package store

import (
	"context"
	"errors"
	"time"
)

// Errors returned by Client implementations.
var (
	// ErrKeyNotFound is returned when a requested key or JSON path does not exist.
	ErrKeyNotFound = errors.New("store: key not found")

	// ErrUnavailable is returned when the backing store is unreachable.
	ErrUnavailable = errors.New("store: unavailable")
)

// SearchHit is one result of a KNN search.
type SearchHit struct {
	// Key is the full document key.
	Key string

	// Distance is the vector distance reported by the index. Lower is more
	// similar for both L2 and cosine metrics.
	Distance float64

	// Document is the raw JSON of the stored document.
	Document []byte
}

// KNNQuery describes a K-nearest-neighbor search against one vector field
// of an index, optionally pre-filtered by exact-match tag fields.
type KNNQuery struct {
	// VectorField is the alias of the vector field to search.
	VectorField string

	// Vector is the query embedding.
	Vector []float32

	// K is the number of neighbors to request. The index always returns up
	// to K results regardless of quality; quality gating is the caller's job.
	K int

	// Filters restricts candidates to documents whose tag field equals the
	// given value. An empty map means no pre-filter.
	Filters map[string]string
}

// Client is the primitive persistence surface used by the memory and chat
// tiers: JSON documents at string keys plus secondary vector indexes.
//
// All paths use RedisJSON path syntax rooted at "$". Implementations must
// treat a missing key as ErrKeyNotFound and an unreachable backend as an
// error wrapping ErrUnavailable.
type Client interface {
	// GetJSON reads the value at path in the document at key into v.
	GetJSON(ctx context.Context, key, path string, v any) error

	// SetJSON writes v as the whole document at key. A positive ttl sets an
	// expiration on the key; zero or negative means store forever.
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error

	// SetJSONNX writes v as the whole document at key only if the key does
	// not exist. It reports whether the write happened.
	SetJSONNX(ctx context.Context, key string, v any) (bool, error)

	// MSetJSON writes several whole documents in one round trip.
	MSetJSON(ctx context.Context, docs map[string]any) error

	// MergeJSON merges v into the value at path, leaving sibling fields
	// untouched.
	MergeJSON(ctx context.Context, key, path string, v any) error

	// AppendJSON appends v to the array at path and returns the new length.
	// The append is atomic with respect to concurrent appends on the same
	// document.
	AppendJSON(ctx context.Context, key, path string, v any) (int64, error)

	// ArrLenJSON returns the length of the array at path without fetching it.
	ArrLenJSON(ctx context.Context, key, path string) (int64, error)

	// IncrJSON adds delta to the number at path and returns the new value.
	IncrJSON(ctx context.Context, key, path string, delta float64) (float64, error)

	// Del removes the given keys. Missing keys are ignored.
	Del(ctx context.Context, keys ...string) error

	// Exists reports whether key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire sets a time-to-live on key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Keys returns every key starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// EnsureIndex creates the index described by schema if it does not
	// already exist. It is idempotent and safe under concurrent first-call
	// races: at most one creation succeeds and the rest observe "already
	// exists" and no-op.
	EnsureIndex(ctx context.Context, schema IndexSchema) error

	// DropIndex removes an index and, when deleteDocs is set, every document
	// it covers. Dropping a missing index is not an error.
	DropIndex(ctx context.Context, name string, deleteDocs bool) error

	// ListIndexes returns the names of all existing indexes.
	ListIndexes(ctx context.Context) ([]string, error)

	// Search runs a KNN query against the named index. Results are sorted
	// ascending by distance.
	Search(ctx context.Context, index string, q KNNQuery) ([]SearchHit, error)
}
