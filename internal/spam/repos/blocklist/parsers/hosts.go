package parsers

import (
	"io"
	"strings"
	"time"

	logpkg "github.com/haukened/rr-spam/internal/spam/common/log"
	"github.com/haukened/rr-spam/internal/spam/domain"
)

// ParseHostsFile parses /etc/hosts-style block-lists ("0.0.0.0 spam.example").
// The address column is ignored; every following hostname becomes an exact rule.
// Wildcards and names starting with '.' are not hosts syntax and are skipped.
func ParseHostsFile(r io.Reader, source string, logger logpkg.Logger, now time.Time) ([]domain.BlockRule, error) {
	return readList(r, source, "hosts", logger, now, hostsEntries)
}

func hostsEntries(line string) []string {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil
	}
	names := make([]string, 0, len(fields)-1)
	for _, f := range fields[1:] {
		if strings.HasPrefix(f, ".") || strings.Contains(f, "*") {
			continue
		}
		names = append(names, f)
	}
	return names
}
