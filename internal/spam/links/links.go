// Package links holds the two pure building blocks of a spam check: finding
// candidate HTTP(S) links in free text and reducing a link to its domain.
package links

import (
	"fmt"
	"net/url"
	"regexp"
	"unicode/utf8"

	"golang.org/x/net/idna"

	"github.com/haukened/rr-spam/internal/spam/common/utils"
	"github.com/haukened/rr-spam/internal/spam/domain"
)

// linkPattern is a lexical match, not a URI grammar: scheme, a host made of
// letters, digits, hyphens and dots, then an optional path/query/fragment
// that runs until whitespace, a quote or an angle bracket.
var linkPattern = regexp.MustCompile(`https?://[A-Za-z0-9.-]+(?:[/?#][^\s"'<>]*)?`)

// ExtractLinks returns every substring of text that looks like an absolute
// http or https URL, in order of appearance. Duplicates are kept.
// Text without matches yields an empty, non-nil slice.
func ExtractLinks(text string) []string {
	found := linkPattern.FindAllString(text, -1)
	if found == nil {
		return []string{}
	}
	return found
}

// ExtractDomain returns the lowercase host name of link without scheme, port,
// credentials, path, query or fragment. Non-ASCII hosts are returned in their
// IDNA ASCII form. Errors wrap domain.ErrInvalidURL.
func ExtractDomain(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", domain.ErrInvalidURL, link, err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("%w: %q: not absolute", domain.ErrInvalidURL, link)
	}

	host := utils.CanonicalDNSName(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: %q: empty host", domain.ErrInvalidURL, link)
	}
	if isASCII(host) {
		return host, nil
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("%w: %q: idna: %v", domain.ErrInvalidURL, link, err)
	}
	return utils.CanonicalDNSName(ascii), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
