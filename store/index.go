package store

import (
	"encoding/binary"
	"math"
	"strings"
)

// FieldType identifies how an index field is queried.
type FieldType string

const (
	// FieldTag is an exact-match string field.
	FieldTag FieldType = "tag"

	// FieldText is a full-text field.
	FieldText FieldType = "text"

	// FieldNumeric is a range-queryable number field.
	FieldNumeric FieldType = "numeric"

	// FieldVector is a KNN-searchable float vector field.
	FieldVector FieldType = "vector"
)

// VectorAlgorithm selects the index structure for a vector field.
type VectorAlgorithm string

const (
	// VectorFlat is an exhaustive-scan index. Exact results, linear cost.
	VectorFlat VectorAlgorithm = "FLAT"

	// VectorHNSW is an approximate-nearest-neighbor graph index.
	VectorHNSW VectorAlgorithm = "HNSW"
)

// DistanceMetric selects the similarity measure for a vector field.
// Lower distances mean more similar under both metrics.
type DistanceMetric string

const (
	// MetricL2 is euclidean distance.
	MetricL2 DistanceMetric = "L2"

	// MetricCosine is cosine distance (1 - cosine similarity).
	MetricCosine DistanceMetric = "COSINE"
)

// VectorOptions configures a vector field.
type VectorOptions struct {
	Algorithm VectorAlgorithm
	Dim       int
	Metric    DistanceMetric
}

// Field describes one indexed attribute of a JSON document.
type Field struct {
	// JSONPath locates the attribute in the document (e.g. "$.question").
	JSONPath string

	// Alias is the name the field is queried by.
	Alias string

	// Type is how the field is indexed.
	Type FieldType

	// Vector holds vector parameters; required when Type is FieldVector.
	Vector *VectorOptions
}

// IndexSchema describes a secondary index over all JSON documents under a
// key prefix.
type IndexSchema struct {
	// Name is the index name. Use IndexName to derive it from the prefix so
	// the mapping stays deterministic.
	Name string

	// Prefix is the key namespace the index covers (e.g. "memory:semantic:").
	Prefix string

	// Fields are the indexed attributes.
	Fields []Field
}

// IndexName derives the deterministic index name for a key namespace.
// "memory:semantic:" becomes "memory-semantic-idx".
func IndexName(prefix string) string {
	name := strings.Trim(prefix, ":")
	name = strings.ReplaceAll(name, ":", "-")
	return name + "-idx"
}

// EncodeVector packs an embedding into the little-endian float32 byte blob
// RediSearch expects for KNN query parameters.
func EncodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}
