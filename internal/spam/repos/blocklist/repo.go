package blocklist

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/haukened/rr-spam/internal/spam/common/utils"
	"github.com/haukened/rr-spam/internal/spam/domain"
)

// generation is one loaded copy of the block-list: the filter that screens
// lookups plus what went into it. It is replaced whole on every reload.
type generation struct {
	filter  BloomFilter
	version uint64
	exact   uint64
	suffix  uint64
}

// mightList reports whether cn or any parent of cn may carry a rule.
// A false answer is definite.
func (g *generation) mightList(cn string) bool {
	for _, key := range filterKeys(cn) {
		if g.filter.MightContain(key) {
			return true
		}
	}
	return false
}

// repository answers "is this link domain spam, and by which rule" from the
// persistent Store. The current generation screens out unlisted names before
// the DecisionCache and the Store are consulted.
type repository struct {
	store   Store
	cache   DecisionCache
	factory BloomFactory
	fpRate  float64

	current atomic.Pointer[generation]
	// mu keeps a cache write from landing after the purge of a reload.
	mu sync.RWMutex
}

// NewRepository constructs a Repository.
// fpRate is the target false-positive rate of each generation's filter.
func NewRepository(store Store, cache DecisionCache, factory BloomFactory, fpRate float64) Repository {
	return &repository{store: store, cache: cache, factory: factory, fpRate: fpRate}
}

// Decide returns the decision for a link domain, including the matching rule
// and the list it came from. Store errors count as not listed.
func (r *repository) Decide(name string) domain.BlockDecision {
	cn := utils.CanonicalDNSName(name)
	if cn == "" {
		return domain.EmptyDecision()
	}
	// before the first load every name goes to the store
	if g := r.current.Load(); g != nil && !g.mightList(cn) {
		return domain.EmptyDecision()
	}

	r.mu.RLock()
	dec, ok := r.cache.Get(cn)
	r.mu.RUnlock()
	if ok {
		return dec
	}

	dec = domain.EmptyDecision()
	if rule, found, err := r.store.GetFirstMatch(cn); err == nil && found {
		dec = domain.DecisionFor(rule)
	}

	r.mu.Lock()
	r.cache.Put(cn, dec)
	r.mu.Unlock()
	return dec
}

// Contains reports whether name is block-listed.
func (r *repository) Contains(name string) bool {
	return r.Decide(name).Blocked
}

// UpdateAll replaces the block-list. The store is rebuilt first; only when
// that succeeds is a new generation published and the cache emptied.
func (r *repository) UpdateAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error {
	if err := r.store.RebuildAll(rules, version, updatedUnix); err != nil {
		return err
	}

	next := &generation{version: version}
	for _, ru := range rules {
		switch {
		case ru.IsExact():
			next.exact++
		case ru.IsSuffix():
			next.suffix++
		}
	}
	next.filter = r.factory.New(next.exact+next.suffix, r.fpRate)
	for _, ru := range rules {
		switch {
		case ru.IsExact():
			next.filter.Add([]byte(ru.Name))
		case ru.IsSuffix():
			next.filter.Add([]byte(reverseString(ru.Name)))
		}
	}

	r.mu.Lock()
	r.current.Store(next)
	r.cache.Purge()
	r.mu.Unlock()
	return nil
}

// RepoStats returns cache counters and store metadata.
func (r *repository) RepoStats() RepoStats {
	hits, misses, evictions := r.cache.Stats()
	stats := RepoStats{
		Hits:      hits,
		Misses:    misses,
		Evictions: evictions,
		CacheSize: r.cache.Len(),
		Store:     r.store.Stats(),
	}
	if g := r.current.Load(); g != nil {
		stats.Version = g.version
		stats.ExactRules = g.exact
		stats.SuffixRules = g.suffix
	}
	return stats
}

// filterKeys lists the filter keys that could match cn: cn itself for an
// exact rule, then cn and each parent reversed for suffix rules, which the
// store also keys reversed.
func filterKeys(cn string) [][]byte {
	keys := [][]byte{[]byte(cn)}
	for rest := cn; rest != ""; {
		keys = append(keys, []byte(reverseString(rest)))
		i := strings.IndexByte(rest, '.')
		if i < 0 {
			break
		}
		rest = rest[i+1:]
	}
	return keys
}

func reverseString(s string) string {
	rs := []rune(s)
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
	return string(rs)
}
