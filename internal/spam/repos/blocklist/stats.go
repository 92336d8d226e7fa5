package blocklist

// StoreStats reports lightweight store metrics and metadata.
type StoreStats struct {
	ExactCount  uint64
	SuffixCount uint64
	Version     uint64 // snapshot version (0 if never rebuilt)
	UpdatedUnix int64  // last rebuild, seconds since epoch
}

// RepoStats exposes repository-level counters and underlying store stats.
// Version, ExactRules and SuffixRules describe the generation in use and
// stay zero until the first load.
type RepoStats struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	CacheSize   int
	Version     uint64
	ExactRules  uint64
	SuffixRules uint64
	Store       StoreStats
}
