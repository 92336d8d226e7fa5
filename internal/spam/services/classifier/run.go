package classifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/haukened/rr-spam/internal/spam/domain"
	"github.com/haukened/rr-spam/internal/spam/links"
)

// errFound stops sibling evaluation once one link is known to be spam.
var errFound = errors.New("spam link found")

// memoKey identifies one evaluation: the same link with more budget can find more.
type memoKey struct {
	link   string
	budget int
}

// entry is an in-flight or completed evaluation. hit and spam are written
// once, before done is closed.
type entry struct {
	done chan struct{}
	hit  domain.Hit
	spam bool
}

// run is the state of a single Check call.
type run struct {
	*Classifier
	decide  func(name string) domain.BlockDecision
	sem     *semaphore.Weighted
	fetches atomic.Int64

	mu   sync.Mutex
	memo map[memoKey]*entry
}

func newRun(c *Classifier, domains DomainSet) *run {
	return &run{
		Classifier: c,
		decide:     decider(domains),
		sem:        semaphore.NewWeighted(c.maxFetches),
		memo:       make(map[memoKey]*entry),
	}
}

// decider prefers the set's own decisions; plain sets match exactly.
func decider(domains DomainSet) func(string) domain.BlockDecision {
	if rs, ok := domains.(RuleSet); ok {
		return rs.Decide
	}
	return func(name string) domain.BlockDecision {
		if !domains.Contains(name) {
			return domain.EmptyDecision()
		}
		return domain.BlockDecision{Blocked: true, MatchedRule: name, Kind: domain.BlockRuleExact}
	}
}

// classifyLinks ORs the results of every link in seq at the given budget.
// The returned hit's trail starts with the matching element of seq.
func (r *run) classifyLinks(ctx context.Context, seq []string, budget int) (domain.Hit, bool) {
	if len(seq) == 0 {
		return domain.Hit{}, false
	}

	// Direct matches need no fetch, so they are settled before any fan-out.
	for _, link := range seq {
		if hit, ok := r.blocked(link); ok {
			return hit, true
		}
	}
	if budget == 0 {
		return domain.Hit{}, false
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)

	var (
		once  sync.Once
		found domain.Hit
	)
	seen := make(map[string]struct{}, len(seq))
	for _, link := range seq {
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			hit, ok := r.checkLink(gctx, link, budget)
			if !ok {
				return nil
			}
			once.Do(func() { found = hit })
			return errFound
		})
	}
	if err := g.Wait(); errors.Is(err, errFound) {
		return found, true
	}
	return domain.Hit{}, false
}

// checkLink evaluates one (link, budget) pair at most once per run.
// Concurrent callers for the same key wait for the first one.
func (r *run) checkLink(ctx context.Context, link string, budget int) (domain.Hit, bool) {
	key := memoKey{link: link, budget: budget}

	r.mu.Lock()
	if e, ok := r.memo[key]; ok {
		r.mu.Unlock()
		select {
		case <-e.done:
			return e.hit, e.spam
		case <-ctx.Done():
			return domain.Hit{}, false
		}
	}
	e := &entry{done: make(chan struct{})}
	r.memo[key] = e
	r.mu.Unlock()

	e.hit, e.spam = r.evaluate(ctx, link, budget)
	close(e.done)
	return e.hit, e.spam
}

// evaluate does the work behind checkLink. Every recursive call uses budget-1.
func (r *run) evaluate(ctx context.Context, link string, budget int) (domain.Hit, bool) {
	name, err := links.ExtractDomain(link)
	if err != nil {
		r.logger.Debug(map[string]any{"link": link, "error": err}, "skip_invalid_link")
		return domain.Hit{}, false
	}
	if dec := r.decide(name); dec.Blocked {
		return domain.NewHit(link, name, dec), true
	}
	if budget == 0 {
		return domain.Hit{}, false
	}

	res, err := r.fetch(ctx, link)
	if err != nil {
		r.logger.Debug(map[string]any{"link": link, "error": err}, "fetch_failed")
		return domain.Hit{}, false
	}

	if res.Redirected && res.FinalURL != "" {
		if hit, ok := r.checkLink(ctx, res.FinalURL, budget-1); ok {
			return hit.Prepend(link), true
		}
	}

	anchors := links.ExtractLinks(res.Body)
	r.logger.Debug(map[string]any{
		"link":       link,
		"budget":     budget,
		"redirected": res.Redirected,
		"final_url":  res.FinalURL,
		"anchors":    len(anchors),
	}, "link_fetched")
	if hit, ok := r.classifyLinks(ctx, anchors, budget-1); ok {
		return hit.Prepend(link), true
	}
	return domain.Hit{}, false
}

// blocked resolves link and reports whether its domain is block-listed.
func (r *run) blocked(link string) (domain.Hit, bool) {
	name, err := links.ExtractDomain(link)
	if err != nil {
		return domain.Hit{}, false
	}
	dec := r.decide(name)
	if !dec.Blocked {
		return domain.Hit{}, false
	}
	return domain.NewHit(link, name, dec), true
}

// fetch holds a slot of the per-run fetch semaphore only for the duration of the request.
func (r *run) fetch(ctx context.Context, link string) (domain.FetchResult, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return domain.FetchResult{}, err
	}
	defer r.sem.Release(1)

	r.fetches.Add(1)
	return r.fetcher.Fetch(ctx, link)
}
