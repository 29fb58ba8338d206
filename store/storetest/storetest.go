// Package storetest provides an in-memory store.Client implementation for
// unit tests. It mirrors the RedisJSON/RediSearch semantics the production
// client relies on, including exhaustive L2 and cosine KNN with ascending
// distance ordering, tag pre-filters, key expiry, and idempotent index
// creation.
package storetest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mnemo-ai/mnemo/store"
)

type document struct {
	data      map[string]any
	expiresAt time.Time
}

func (d *document) expired(now time.Time) bool {
	return !d.expiresAt.IsZero() && now.After(d.expiresAt)
}

// Fake is an in-memory store.Client. The zero value is not usable; call New.
type Fake struct {
	mu      sync.Mutex
	docs    map[string]*document
	indexes map[string]store.IndexSchema

	// CreateCalls counts actual index creations (not idempotent no-ops).
	CreateCalls int

	// SearchErr, when set, is returned by every Search call. Used to test
	// failure propagation.
	SearchErr error
}

var _ store.Client = (*Fake)(nil)

// New returns an empty fake store.
func New() *Fake {
	return &Fake{
		docs:    make(map[string]*document),
		indexes: make(map[string]store.IndexSchema),
	}
}

// roundTrip deep-copies v through JSON so stored documents share no memory
// with the caller, matching a real store.
func roundTrip(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("storetest: documents must be JSON objects: %w", err)
	}
	return out, nil
}

func (f *Fake) live(key string) (*document, bool) {
	doc, ok := f.docs[key]
	if !ok {
		return nil, false
	}
	if doc.expired(time.Now()) {
		delete(f.docs, key)
		return nil, false
	}
	return doc, true
}

// resolvePath evaluates the subset of JSONPath the system uses:
// "$", "$.field", and "$.field[-1]".
func resolvePath(data map[string]any, path string) (any, bool) {
	if path == "$" {
		return data, true
	}
	rest := strings.TrimPrefix(path, "$.")
	if rest == path {
		return nil, false
	}
	if idx := strings.Index(rest, "["); idx >= 0 {
		field := rest[:idx]
		if !strings.HasSuffix(rest, "[-1]") {
			return nil, false
		}
		arr, ok := data[field].([]any)
		if !ok || len(arr) == 0 {
			return nil, false
		}
		return arr[len(arr)-1], true
	}
	v, ok := data[rest]
	return v, ok
}

func (f *Fake) GetJSON(ctx context.Context, key, path string, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.live(key)
	if !ok {
		return fmt.Errorf("get %s: %w", key, store.ErrKeyNotFound)
	}
	val, ok := resolvePath(doc.data, path)
	if !ok {
		return fmt.Errorf("get %s %s: %w", key, path, store.ErrKeyNotFound)
	}
	data, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (f *Fake) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := roundTrip(v)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc := &document{data: data}
	if ttl > 0 {
		doc.expiresAt = time.Now().Add(ttl)
	}
	f.docs[key] = doc
	return nil
}

func (f *Fake) SetJSONNX(ctx context.Context, key string, v any) (bool, error) {
	data, err := roundTrip(v)
	if err != nil {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.live(key); ok {
		return false, nil
	}
	f.docs[key] = &document{data: data}
	return true, nil
}

func (f *Fake) MSetJSON(ctx context.Context, docs map[string]any) error {
	prepared := make(map[string]map[string]any, len(docs))
	for key, v := range docs {
		data, err := roundTrip(v)
		if err != nil {
			return err
		}
		prepared[key] = data
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for key, data := range prepared {
		f.docs[key] = &document{data: data}
	}
	return nil
}

// MergeJSON merges into the root object or into one array element
// ("$.field[idx]"), matching the paths the system writes through.
func (f *Fake) MergeJSON(ctx context.Context, key, path string, v any) error {
	patch, err := roundTrip(v)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.live(key)
	if !ok {
		return fmt.Errorf("merge %s: %w", key, store.ErrKeyNotFound)
	}

	target := doc.data
	if path != "$" {
		target, ok = elementAt(doc.data, path)
		if !ok {
			return fmt.Errorf("merge %s %s: %w", key, path, store.ErrKeyNotFound)
		}
	}
	for k, val := range patch {
		target[k] = val
	}
	return nil
}

// elementAt resolves a "$.field[idx]" path to the object element it names.
func elementAt(data map[string]any, path string) (map[string]any, bool) {
	rest := strings.TrimPrefix(path, "$.")
	if rest == path {
		return nil, false
	}
	open := strings.Index(rest, "[")
	if open < 0 || !strings.HasSuffix(rest, "]") {
		return nil, false
	}
	arr, ok := data[rest[:open]].([]any)
	if !ok {
		return nil, false
	}
	idx, err := strconv.Atoi(rest[open+1 : len(rest)-1])
	if err != nil {
		return nil, false
	}
	if idx < 0 {
		idx += len(arr)
	}
	if idx < 0 || idx >= len(arr) {
		return nil, false
	}
	obj, ok := arr[idx].(map[string]any)
	return obj, ok
}

func (f *Fake) AppendJSON(ctx context.Context, key, path string, v any) (int64, error) {
	field := strings.TrimPrefix(path, "$.")
	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	var elem any
	if err := json.Unmarshal(data, &elem); err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.live(key)
	if !ok {
		return 0, fmt.Errorf("append %s: %w", key, store.ErrKeyNotFound)
	}
	arr, ok := doc.data[field].([]any)
	if !ok {
		return 0, fmt.Errorf("append %s %s: %w", key, path, store.ErrKeyNotFound)
	}
	arr = append(arr, elem)
	doc.data[field] = arr
	return int64(len(arr)), nil
}

func (f *Fake) ArrLenJSON(ctx context.Context, key, path string) (int64, error) {
	field := strings.TrimPrefix(path, "$.")

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.live(key)
	if !ok {
		return 0, fmt.Errorf("arrlen %s: %w", key, store.ErrKeyNotFound)
	}
	arr, ok := doc.data[field].([]any)
	if !ok {
		return 0, fmt.Errorf("arrlen %s %s: %w", key, path, store.ErrKeyNotFound)
	}
	return int64(len(arr)), nil
}

func (f *Fake) IncrJSON(ctx context.Context, key, path string, delta float64) (float64, error) {
	field := strings.TrimPrefix(path, "$.")

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.live(key)
	if !ok {
		return 0, fmt.Errorf("incr %s: %w", key, store.ErrKeyNotFound)
	}
	current, _ := doc.data[field].(float64)
	current += delta
	doc.data[field] = current
	return current, nil
}

func (f *Fake) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, key := range keys {
		delete(f.docs, key)
	}
	return nil
}

func (f *Fake) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.live(key)
	return ok, nil
}

func (f *Fake) Expire(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.live(key)
	if !ok {
		return fmt.Errorf("expire %s: %w", key, store.ErrKeyNotFound)
	}
	doc.expiresAt = time.Now().Add(ttl)
	return nil
}

func (f *Fake) Keys(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for key := range f.docs {
		if strings.HasPrefix(key, prefix) {
			if _, ok := f.live(key); ok {
				keys = append(keys, key)
			}
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *Fake) EnsureIndex(ctx context.Context, schema store.IndexSchema) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.indexes[schema.Name]; ok {
		return nil
	}
	f.indexes[schema.Name] = schema
	f.CreateCalls++
	return nil
}

func (f *Fake) DropIndex(ctx context.Context, name string, deleteDocs bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	schema, ok := f.indexes[name]
	delete(f.indexes, name)
	if ok && deleteDocs {
		for key := range f.docs {
			if strings.HasPrefix(key, schema.Prefix) {
				delete(f.docs, key)
			}
		}
	}
	return nil
}

func (f *Fake) ListIndexes(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.indexes))
	for name := range f.indexes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *Fake) Search(ctx context.Context, index string, q store.KNNQuery) ([]store.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SearchErr != nil {
		return nil, f.SearchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	schema, ok := f.indexes[index]
	if !ok {
		return nil, fmt.Errorf("storetest: unknown index %q", index)
	}

	field, ok := findField(schema, q.VectorField)
	if !ok || field.Type != store.FieldVector {
		return nil, fmt.Errorf("storetest: index %q has no vector field %q", index, q.VectorField)
	}

	k := q.K
	if k <= 0 {
		k = 1
	}

	var hits []store.SearchHit
	for key, doc := range f.docs {
		if !strings.HasPrefix(key, schema.Prefix) || doc.expired(time.Now()) {
			continue
		}
		if !matchFilters(schema, doc.data, q.Filters) {
			continue
		}
		vec, ok := vectorAt(doc.data, field.JSONPath)
		if !ok {
			continue
		}
		dist, ok := distance(field.Vector.Metric, q.Vector, vec)
		if !ok {
			continue
		}
		data, err := json.Marshal(doc.data)
		if err != nil {
			return nil, err
		}
		hits = append(hits, store.SearchHit{Key: key, Distance: dist, Document: data})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func findField(schema store.IndexSchema, alias string) (store.Field, bool) {
	for _, f := range schema.Fields {
		if f.Alias == alias {
			return f, true
		}
	}
	return store.Field{}, false
}

func matchFilters(schema store.IndexSchema, data map[string]any, filters map[string]string) bool {
	for alias, want := range filters {
		field, ok := findField(schema, alias)
		if !ok {
			return false
		}
		got, ok := resolvePath(data, field.JSONPath)
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}

func vectorAt(data map[string]any, path string) ([]float32, bool) {
	raw, ok := resolvePath(data, path)
	if !ok {
		return nil, false
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	vec := make([]float32, len(arr))
	for i, v := range arr {
		num, ok := v.(float64)
		if !ok {
			return nil, false
		}
		vec[i] = float32(num)
	}
	return vec, true
}

// distance computes the metric RediSearch would report: euclidean distance
// for L2 indexes, 1-cosine-similarity for cosine indexes.
func distance(metric store.DistanceMetric, a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	switch metric {
	case store.MetricCosine:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 0, false
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb)), true
	default:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum), true
	}
}
