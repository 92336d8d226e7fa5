package parsers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	logpkg "github.com/haukened/rr-spam/internal/spam/common/log"
	"github.com/haukened/rr-spam/internal/spam/domain"
)

// ParseFunc is the shared signature of the list parsers.
type ParseFunc func(r io.Reader, source string, logger logpkg.Logger, now time.Time) ([]domain.BlockRule, error)

// parserFor picks a parser by file name: "hosts" or "*.hosts" use the hosts
// format, ".txt" and ".list" the plain format. Other files are ignored.
func parserFor(name string) (ParseFunc, bool) {
	base := strings.ToLower(filepath.Base(name))
	switch {
	case base == "hosts", strings.HasSuffix(base, ".hosts"):
		return ParseHostsFile, true
	case strings.HasSuffix(base, ".txt"), strings.HasSuffix(base, ".list"):
		return ParsePlainList, true
	default:
		return nil, false
	}
}

// LoadDirectory parses every recognised list file directly inside dir, in
// lexical order, and returns the union of their rules. Rules repeated across
// files keep the first file's attribution.
func LoadDirectory(dir string, logger logpkg.Logger, now time.Time) ([]domain.BlockRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read blocklist dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	seen := make(map[string]struct{})
	var out []domain.BlockRule
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		parse, ok := parserFor(e.Name())
		if !ok {
			logger.Debug(map[string]any{"file": e.Name()}, "blocklist_skip_unknown_file")
			continue
		}

		path := filepath.Join(dir, e.Name())
		rules, err := parseFile(path, parse, logger, now)
		if err != nil {
			return nil, err
		}
		for _, r := range rules {
			key := r.Pattern()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, r)
		}
		logger.Info(map[string]any{"file": path, "rules": len(rules)}, "Blocklist file loaded")
	}
	return out, nil
}

func parseFile(path string, parse ParseFunc, logger logpkg.Logger, now time.Time) ([]domain.BlockRule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rules, err := parse(f, filepath.Base(path), logger, now)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rules, nil
}
