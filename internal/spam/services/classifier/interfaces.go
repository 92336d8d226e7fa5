package classifier

import (
	"context"

	"github.com/haukened/rr-spam/internal/spam/domain"
)

// DomainSet is the block-list consulted for every resolved link domain.
// It must not change while a check is running.
type DomainSet interface {
	Contains(name string) bool
}

// RuleSet is a DomainSet that can also say which rule matched. Verdicts
// against a RuleSet carry the rule and its source list.
type RuleSet interface {
	DomainSet
	Decide(name string) domain.BlockDecision
}

// Fetcher performs one HTTP GET for the classifier.
// Failures should wrap domain.ErrFetch; the classifier absorbs them per link.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (domain.FetchResult, error)
}
