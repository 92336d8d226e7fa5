package parsers

import (
	"bufio"
	"io"
	"strings"
	"time"
	"unicode"

	logpkg "github.com/haukened/rr-spam/internal/spam/common/log"
	"github.com/haukened/rr-spam/internal/spam/domain"
)

// entriesFunc splits one comment-free, non-blank line of a list into the
// entries it names, each written the way domain.ParseBlockRule reads them.
type entriesFunc func(line string) []string

// readList is the scanning loop every list format shares. '#' starts a
// comment. Entries that do not parse into a rule for a plausible host are
// logged and skipped, and a repeated pattern keeps its first occurrence.
func readList(r io.Reader, source, format string, logger logpkg.Logger, now time.Time, entries entriesFunc) ([]domain.BlockRule, error) {
	scanner := bufio.NewScanner(r)
	seen := make(map[string]struct{})
	var out []domain.BlockRule

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimPrefix(scanner.Text(), "\ufeff")
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		for _, written := range entries(line) {
			rule, err := domain.ParseBlockRule(written, source, now)
			if err == nil && !isValidFQDN(rule.Name) {
				err = domain.ErrInvalidRule
			}
			if err != nil {
				logger.Debug(map[string]any{"source": source, "line": lineNum, "entry": written, "error": err}, "blocklist_skip_entry")
				continue
			}
			if _, dup := seen[rule.Pattern()]; dup {
				continue
			}
			seen[rule.Pattern()] = struct{}{}
			out = append(out, rule)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "format": format, "rules": len(out)}, "blocklist_parsed")
	return out, nil
}

// isValidFQDN accepts names of at most 255 bytes with at least two labels of
// 1..63 bytes each, whose first character is a letter or digit.
func isValidFQDN(name string) bool {
	if len(name) > 255 {
		return false
	}
	labels := strings.Split(name, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
	}
	first := []rune(labels[0])[0]
	return unicode.IsLetter(first) || unicode.IsDigit(first)
}
