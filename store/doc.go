// Package store provides the persistence primitives the memory and chat
// tiers are built on: JSON documents at string keys, secondary vector
// indexes over those documents, and K-nearest-neighbor search.
//
// The production implementation (RedisClient) maps the primitives onto
// RedisJSON and RediSearch commands. Connections are managed by an explicit
// Pool that keeps one client per target URL and is passed by reference to
// every component at construction time; there is no process-wide registry.
//
// The storetest subpackage provides an in-memory Client implementation with
// the same semantics (including exhaustive L2 and cosine KNN) for unit
// tests, since miniredis does not emulate the JSON or search command
// families.
package store
