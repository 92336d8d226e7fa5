package blocklist

import "github.com/haukened/rr-spam/internal/spam/domain"

// BloomFilter is the minimal interface the repository needs from Bloom filters.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory builds filters sized for capacity entries at the target false-positive rate.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// BloomSizer computes Bloom filter parameters from capacity (n) and target FP rate (p).
// It returns m (number of bits) and k (number of hash functions).
type BloomSizer interface {
	Size(n uint64, p float64) (m uint64, k uint8)
}

// DecisionCache caches block decisions by canonical domain with basic metrics.
type DecisionCache interface {
	Get(name string) (domain.BlockDecision, bool)
	Put(name string, d domain.BlockDecision)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// Store is the persistent block-list index.
//   - GetFirstMatch: exact hit first, then the most specific suffix rule
//   - RebuildAll: replace every rule in one transaction and record metadata
type Store interface {
	GetFirstMatch(name string) (domain.BlockRule, bool, error)
	RebuildAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error
	Stats() StoreStats
	Close() error
}

// Repository wires cache → bloom → store and satisfies the classifier's
// domain set contract through Contains.
type Repository interface {
	Decide(name string) domain.BlockDecision
	Contains(name string) bool
	UpdateAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error
	RepoStats() RepoStats
}
