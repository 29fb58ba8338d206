package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient implements Client on top of RedisJSON and RediSearch.
type RedisClient struct {
	rdb *redis.Client
}

var _ Client = (*RedisClient)(nil)

// NewRedisClient wraps an existing connection, typically obtained from a Pool.
func NewRedisClient(rdb *redis.Client) *RedisClient {
	return &RedisClient{rdb: rdb}
}

// wrapErr maps low-level failures onto the package sentinels.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	// go-redis may hand back redis.Nil wrapped (pipelines, hooks).
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", op, ErrKeyNotFound)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || strings.Contains(err.Error(), "connection refused") {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (c *RedisClient) GetJSON(ctx context.Context, key, path string, v any) error {
	raw, err := c.rdb.JSONGet(ctx, key, path).Result()
	if err != nil {
		return wrapErr("json get "+key, err)
	}
	if raw == "" {
		return fmt.Errorf("json get %s: %w", key, ErrKeyNotFound)
	}

	// JSONPath queries return an array of matches; unwrap single results.
	var matches []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &matches); err != nil {
		// Legacy path syntax returns the bare value.
		return json.Unmarshal([]byte(raw), v)
	}
	if len(matches) == 0 {
		return fmt.Errorf("json get %s %s: %w", key, path, ErrKeyNotFound)
	}
	return json.Unmarshal(matches[0], v)
}

func (c *RedisClient) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.rdb.JSONSet(ctx, key, "$", string(data)).Err(); err != nil {
		return wrapErr("json set "+key, err)
	}
	if ttl > 0 {
		if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return wrapErr("expire "+key, err)
		}
	}
	return nil
}

func (c *RedisClient) SetJSONNX(ctx context.Context, key string, v any) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("marshal %s: %w", key, err)
	}
	err = c.rdb.JSONSetMode(ctx, key, "$", string(data), "NX").Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("json set nx "+key, err)
	}
	return true, nil
}

func (c *RedisClient) MSetJSON(ctx context.Context, docs map[string]any) error {
	if len(docs) == 0 {
		return nil
	}
	args := make([]redis.JSONSetArgs, 0, len(docs))
	for key, v := range docs {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		args = append(args, redis.JSONSetArgs{Key: key, Path: "$", Value: string(data)})
	}
	if err := c.rdb.JSONMSetArgs(ctx, args).Err(); err != nil {
		return wrapErr("json mset", err)
	}
	return nil
}

func (c *RedisClient) MergeJSON(ctx context.Context, key, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := c.rdb.JSONMerge(ctx, key, path, string(data)).Err(); err != nil {
		return wrapErr("json merge "+key, err)
	}
	return nil
}

func (c *RedisClient) AppendJSON(ctx context.Context, key, path string, v any) (int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("marshal %s: %w", key, err)
	}
	lens, err := c.rdb.JSONArrAppend(ctx, key, path, string(data)).Result()
	if err != nil {
		return 0, wrapErr("json arrappend "+key, err)
	}
	if len(lens) == 0 {
		return 0, fmt.Errorf("json arrappend %s %s: %w", key, path, ErrKeyNotFound)
	}
	return lens[0], nil
}

func (c *RedisClient) ArrLenJSON(ctx context.Context, key, path string) (int64, error) {
	lens, err := c.rdb.JSONArrLen(ctx, key, path).Result()
	if err != nil {
		return 0, wrapErr("json arrlen "+key, err)
	}
	if len(lens) == 0 {
		return 0, fmt.Errorf("json arrlen %s %s: %w", key, path, ErrKeyNotFound)
	}
	return lens[0], nil
}

func (c *RedisClient) IncrJSON(ctx context.Context, key, path string, delta float64) (float64, error) {
	raw, err := c.rdb.JSONNumIncrBy(ctx, key, path, delta).Result()
	if err != nil {
		return 0, wrapErr("json numincrby "+key, err)
	}
	var vals []float64
	if err := json.Unmarshal([]byte(raw), &vals); err != nil || len(vals) == 0 {
		return 0, fmt.Errorf("json numincrby %s: unexpected reply %q", key, raw)
	}
	return vals[0], nil
}

func (c *RedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return wrapErr("del", err)
	}
	return nil
}

func (c *RedisClient) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, wrapErr("exists "+key, err)
	}
	return n > 0, nil
}

func (c *RedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := c.rdb.Expire(ctx, key, ttl).Err(); err != nil {
		return wrapErr("expire "+key, err)
	}
	return nil
}

func (c *RedisClient) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := c.rdb.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, wrapErr("scan "+prefix, err)
	}
	return keys, nil
}

func (c *RedisClient) EnsureIndex(ctx context.Context, schema IndexSchema) error {
	existing, err := c.ListIndexes(ctx)
	if err != nil {
		return err
	}
	for _, name := range existing {
		if name == schema.Name {
			return nil
		}
	}

	opts := &redis.FTCreateOptions{
		OnJSON: true,
		Prefix: []any{schema.Prefix},
	}

	fields := make([]*redis.FieldSchema, 0, len(schema.Fields))
	for _, f := range schema.Fields {
		fs := &redis.FieldSchema{
			FieldName: f.JSONPath,
			As:        f.Alias,
		}
		switch f.Type {
		case FieldTag:
			fs.FieldType = redis.SearchFieldTypeTag
		case FieldText:
			fs.FieldType = redis.SearchFieldTypeText
		case FieldNumeric:
			fs.FieldType = redis.SearchFieldTypeNumeric
		case FieldVector:
			fs.FieldType = redis.SearchFieldTypeVector
			if f.Vector == nil {
				return fmt.Errorf("index %s: vector field %s missing options", schema.Name, f.Alias)
			}
			switch f.Vector.Algorithm {
			case VectorHNSW:
				fs.VectorArgs = &redis.FTVectorArgs{
					HNSWOptions: &redis.FTHNSWOptions{
						Type:           "FLOAT32",
						Dim:            f.Vector.Dim,
						DistanceMetric: string(f.Vector.Metric),
					},
				}
			default:
				fs.VectorArgs = &redis.FTVectorArgs{
					FlatOptions: &redis.FTFlatOptions{
						Type:           "FLOAT32",
						Dim:            f.Vector.Dim,
						DistanceMetric: string(f.Vector.Metric),
					},
				}
			}
		default:
			return fmt.Errorf("index %s: unknown field type %q", schema.Name, f.Type)
		}
		fields = append(fields, fs)
	}

	err = c.rdb.FTCreate(ctx, schema.Name, opts, fields...).Err()
	if err != nil && strings.Contains(err.Error(), "already exists") {
		// Lost a concurrent creation race; the index is there, which is all
		// that matters.
		return nil
	}
	if err != nil {
		return wrapErr("ft.create "+schema.Name, err)
	}
	return nil
}

func (c *RedisClient) DropIndex(ctx context.Context, name string, deleteDocs bool) error {
	err := c.rdb.FTDropIndexWithArgs(ctx, name, &redis.FTDropIndexOptions{DeleteDocs: deleteDocs}).Err()
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unknown index") {
		return nil
	}
	if err != nil {
		return wrapErr("ft.dropindex "+name, err)
	}
	return nil
}

func (c *RedisClient) ListIndexes(ctx context.Context) ([]string, error) {
	names, err := c.rdb.FT_List(ctx).Result()
	if err != nil {
		return nil, wrapErr("ft._list", err)
	}
	return names, nil
}

func (c *RedisClient) Search(ctx context.Context, index string, q KNNQuery) ([]SearchHit, error) {
	if q.K <= 0 {
		q.K = 1
	}

	filter := "*"
	if len(q.Filters) > 0 {
		clauses := make([]string, 0, len(q.Filters))
		for field, value := range q.Filters {
			clauses = append(clauses, fmt.Sprintf("@%s:{%s}", field, escapeTag(value)))
		}
		filter = "(" + strings.Join(clauses, " ") + ")"
	}

	query := fmt.Sprintf("%s=>[KNN $k @%s $vec AS distance]", filter, q.VectorField)

	res, err := c.rdb.FTSearchWithArgs(ctx, index, query, &redis.FTSearchOptions{
		Params: map[string]any{
			"k":   q.K,
			"vec": EncodeVector(q.Vector),
		},
		SortBy: []redis.FTSearchSortBy{
			{FieldName: "distance", Asc: true},
		},
		Return: []redis.FTSearchReturn{
			{FieldName: "$", As: "doc"},
			{FieldName: "distance"},
		},
		Limit:          q.K,
		DialectVersion: 2,
	}).Result()
	if err != nil {
		return nil, wrapErr("ft.search "+index, err)
	}

	hits := make([]SearchHit, 0, len(res.Docs))
	for _, doc := range res.Docs {
		distance, err := strconv.ParseFloat(doc.Fields["distance"], 64)
		if err != nil {
			// A result without a parseable distance cannot be gated against a
			// threshold; skip it.
			continue
		}
		hits = append(hits, SearchHit{
			Key:      doc.ID,
			Distance: distance,
			Document: []byte(doc.Fields["doc"]),
		})
	}
	return hits, nil
}

// escapeTag escapes the characters RediSearch treats specially inside a tag
// filter.
func escapeTag(v string) string {
	replacer := strings.NewReplacer(
		",", "\\,", ".", "\\.", "<", "\\<", ">", "\\>", "{", "\\{", "}", "\\}",
		"[", "\\[", "]", "\\]", "\"", "\\\"", "'", "\\'", ":", "\\:", ";", "\\;",
		"!", "\\!", "@", "\\@", "#", "\\#", "$", "\\$", "%", "\\%", "^", "\\^",
		"&", "\\&", "*", "\\*", "(", "\\(", ")", "\\)", "-", "\\-", "+", "\\+",
		"=", "\\=", "~", "\\~", " ", "\\ ",
	)
	return replacer.Replace(v)
}
