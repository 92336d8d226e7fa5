package domain

// BlockDecision is the outcome of looking a domain up in the block-list.
type BlockDecision struct {
	Blocked     bool
	MatchedRule string // name of the rule that matched
	Source      string // list file of the matched rule
	Kind        BlockRuleKind
}

func (d BlockDecision) IsBlocked() bool { return d.Blocked }

// Pattern renders the matched rule the way a plain list writes it:
// "*.name" for suffix rules, the bare name otherwise. Empty when not blocked.
func (d BlockDecision) Pattern() string {
	if !d.Blocked {
		return ""
	}
	return pattern(d.MatchedRule, d.Kind)
}

// EmptyDecision returns a not-blocked decision.
func EmptyDecision() BlockDecision { return BlockDecision{Blocked: false} }

// DecisionFor returns the blocked decision produced by rule.
func DecisionFor(rule BlockRule) BlockDecision {
	return BlockDecision{Blocked: true, MatchedRule: rule.Name, Source: rule.Source, Kind: rule.Kind}
}
