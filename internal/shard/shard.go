// Package shard maps keys onto a fixed number of lock stripes.
package shard

import "github.com/cespare/xxhash/v2"

// DefaultCount is used when a caller asks for a non-positive shard count.
const DefaultCount = 32

// Normalize returns n, or DefaultCount when n < 1.
func Normalize(n int) int {
	if n < 1 {
		return DefaultCount
	}
	return n
}

// Index returns the stripe for key among n stripes.
func Index(key string, n int) int {
	return int(xxhash.Sum64String(key) % uint64(n))
}
