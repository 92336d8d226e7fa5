package classifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/haukened/rr-spam/internal/spam/common/log"
	"github.com/haukened/rr-spam/internal/spam/domain"
	"github.com/haukened/rr-spam/internal/spam/links"
)

const (
	defaultParallelism = 8
	defaultMaxFetches  = 16
)

var (
	// ErrNegativeDepth is returned when a check is requested with a negative redirection depth.
	ErrNegativeDepth = errors.New("redirection depth must not be negative")
	// ErrFetcherRequired is returned by New when no Fetcher is supplied.
	ErrFetcherRequired = errors.New("fetcher is required")
)

// Classifier decides whether content is spam by following its links.
// It holds no per-check state and is safe for concurrent use.
type Classifier struct {
	fetcher     Fetcher
	logger      log.Logger
	parallelism int
	maxFetches  int64
}

// Options configures a Classifier.
type Options struct {
	Fetcher Fetcher
	Logger  log.Logger
	// Parallelism caps concurrently evaluated sibling links per sequence.
	Parallelism int
	// MaxFetches caps in-flight fetches within one check.
	MaxFetches int
}

// New creates a Classifier. Zero limits fall back to defaults.
func New(opts Options) (*Classifier, error) {
	if opts.Fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = defaultParallelism
	}
	if opts.MaxFetches <= 0 {
		opts.MaxFetches = defaultMaxFetches
	}
	return &Classifier{
		fetcher:     opts.Fetcher,
		logger:      opts.Logger,
		parallelism: opts.Parallelism,
		maxFetches:  int64(opts.MaxFetches),
	}, nil
}

// IsSpam reports whether content links, directly or through at most depth
// redirect or anchor hops per link, to a domain in domains.
func (c *Classifier) IsSpam(ctx context.Context, content string, domains DomainSet, depth int) (bool, error) {
	v, err := c.Check(ctx, content, domains, depth)
	return v.Spam, err
}

// Check is IsSpam with the evidence behind the answer.
//
// Malformed links and failed fetches only remove that link's contribution.
// If ctx ends before a positive verdict is reached, ctx.Err() is returned.
func (c *Classifier) Check(ctx context.Context, content string, domains DomainSet, depth int) (domain.Verdict, error) {
	if depth < 0 {
		return domain.Verdict{}, fmt.Errorf("%w: %d", ErrNegativeDepth, depth)
	}

	if domains == nil {
		domains = emptySet{}
	}

	found := links.ExtractLinks(content)
	v := domain.Verdict{Links: len(found)}
	if len(found) == 0 {
		return v, nil
	}

	r := newRun(c, domains)
	hit, spam := r.classifyLinks(ctx, found, depth)
	v.Fetches = r.fetches.Load()
	if spam {
		v.Spam = true
		v.Link = hit.Trail[0]
		v.Domain = hit.Domain
		v.Rule = hit.Match.Pattern()
		v.Source = hit.Match.Source
		v.Trail = hit.Trail
		return v, nil
	}
	if err := ctx.Err(); err != nil {
		return v, err
	}
	return v, nil
}

type emptySet struct{}

func (emptySet) Contains(string) bool { return false }
