package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// BlockRuleKind defines how a block-list entry matches a link's domain.
type BlockRuleKind uint8

const (
	// BlockRuleExact matches the listed domain only. This is the plain
	// membership semantics of a spam domain set.
	BlockRuleExact BlockRuleKind = iota
	// BlockRuleSuffix matches the listed domain and every subdomain of it.
	BlockRuleSuffix
)

var kindNames = [...]string{BlockRuleExact: "exact", BlockRuleSuffix: "suffix"}

func (k BlockRuleKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("BlockRuleKind(%d)", k)
}

// ErrInvalidRule is returned for block-list entries that cannot become a rule.
var ErrInvalidRule = errors.New("invalid block rule")

// BlockRule is one spam domain entry loaded from a list file.
// Name is a canonical host name: lowercase, no trailing dot, no wildcard.
type BlockRule struct {
	Name    string
	Kind    BlockRuleKind
	Source  string    // list file the rule came from
	AddedAt time.Time // ingestion time
}

// ParseBlockRule reads a rule written as "name", "*.name" or ".name"; the
// last two cover subdomains too. Case and a trailing dot are ignored.
func ParseBlockRule(written, source string, addedAt time.Time) (BlockRule, error) {
	name := strings.ToLower(strings.TrimSpace(written))
	kind := BlockRuleExact
	for _, marker := range []string{"*.", "."} {
		if strings.HasPrefix(name, marker) {
			name, kind = name[len(marker):], BlockRuleSuffix
			break
		}
	}
	return NewBlockRule(strings.TrimRight(name, "."), kind, source, addedAt)
}

// NewBlockRule constructs and validates a BlockRule.
func NewBlockRule(name string, kind BlockRuleKind, source string, addedAt time.Time) (BlockRule, error) {
	r := BlockRule{
		Name:    strings.TrimSpace(name),
		Kind:    kind,
		Source:  strings.TrimSpace(source),
		AddedAt: addedAt,
	}
	if err := r.Validate(); err != nil {
		return BlockRule{}, err
	}
	return r, nil
}

// Validate checks that the rule names a canonical host and carries provenance.
func (r BlockRule) Validate() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidRule)
	case r.Name != strings.ToLower(r.Name), strings.HasSuffix(r.Name, "."), strings.ContainsAny(r.Name, "*/: "):
		return fmt.Errorf("%w: %q is not a canonical host name", ErrInvalidRule, r.Name)
	case r.Source == "":
		return fmt.Errorf("%w: %s has no source", ErrInvalidRule, r.Name)
	case r.AddedAt.IsZero():
		return fmt.Errorf("%w: %s has no ingestion time", ErrInvalidRule, r.Name)
	case int(r.Kind) >= len(kindNames):
		return fmt.Errorf("%w: unsupported kind %s", ErrInvalidRule, r.Kind)
	}
	return nil
}

// Pattern is the rule in the form ParseBlockRule reads.
func (r BlockRule) Pattern() string {
	return pattern(r.Name, r.Kind)
}

// Covers reports whether a link domain, in canonical form, falls under this rule.
func (r BlockRule) Covers(host string) bool {
	if host == r.Name {
		return true
	}
	return r.Kind == BlockRuleSuffix && strings.HasSuffix(host, "."+r.Name)
}

func (r BlockRule) IsExact() bool  { return r.Kind == BlockRuleExact }
func (r BlockRule) IsSuffix() bool { return r.Kind == BlockRuleSuffix }

func pattern(name string, kind BlockRuleKind) string {
	if kind == BlockRuleSuffix {
		return "*." + name
	}
	return name
}
