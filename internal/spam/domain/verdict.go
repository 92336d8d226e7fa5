package domain

// Verdict is the outcome of classifying one block of content.
type Verdict struct {
	Spam bool `json:"spam"`
	// Link is the top-level link from the content that led to the match.
	Link string `json:"link,omitempty"`
	// Domain is the block-listed domain that matched.
	Domain string `json:"domain,omitempty"`
	// Rule is the block-list entry that matched Domain, e.g. "*.spam.example".
	Rule string `json:"rule,omitempty"`
	// Source names the list the rule was loaded from. Empty for ad hoc sets.
	Source string `json:"source,omitempty"`
	// Trail holds the URLs followed from Link to the URL whose domain matched,
	// Link first. A direct match has a single element.
	Trail []string `json:"trail,omitempty"`
	// Links is the number of links extracted from the content.
	Links int `json:"links"`
	// Fetches is the number of network fetches performed.
	Fetches int64 `json:"fetches"`
}

// Hit describes a positive match relative to a single link.
type Hit struct {
	Domain string
	Match  BlockDecision
	Trail  []string
}

// NewHit is a direct match of link, whose domain name was blocked by dec.
func NewHit(link, name string, dec BlockDecision) Hit {
	return Hit{Domain: name, Match: dec, Trail: []string{link}}
}

// Prepend returns a copy of h with link added at the front of the trail.
func (h Hit) Prepend(link string) Hit {
	trail := make([]string, 0, len(h.Trail)+1)
	trail = append(trail, link)
	trail = append(trail, h.Trail...)
	return Hit{Domain: h.Domain, Match: h.Match, Trail: trail}
}
