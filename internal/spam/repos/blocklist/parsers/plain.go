package parsers

import (
	"io"
	"strings"
	"time"

	logpkg "github.com/haukened/rr-spam/internal/spam/common/log"
	"github.com/haukened/rr-spam/internal/spam/domain"
	"github.com/haukened/rr-spam/internal/spam/links"
)

// ParsePlainList parses a newline-delimited list of spam domains.
//
// Each line holds one entry:
//   - "name" is an exact rule, "*.name" and ".name" are suffix rules
//   - a whole URL lists its host exactly, so spam reports can be
//     pasted in as they arrive
//
// Anything after the first field is ignored.
func ParsePlainList(r io.Reader, source string, logger logpkg.Logger, now time.Time) ([]domain.BlockRule, error) {
	return readList(r, source, "plain", logger, now, plainEntries)
}

func plainEntries(line string) []string {
	first := strings.Fields(line)[0]
	if !strings.Contains(first, "://") {
		return []string{first}
	}
	host, err := links.ExtractDomain(first)
	if err != nil {
		// left as written so the rejection is logged
		return []string{first}
	}
	return []string{host}
}
