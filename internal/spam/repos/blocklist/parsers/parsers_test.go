package parsers

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logpkg "github.com/haukened/rr-spam/internal/spam/common/log"
	"github.com/haukened/rr-spam/internal/spam/domain"
)

var fixedNow = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func names(rules []domain.BlockRule) []string {
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Kind.String()+":"+r.Name)
	}
	return out
}

func TestPlainEntries(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"moiming.page.link", []string{"moiming.page.link"}},
		{"*.spam.example", []string{"*.spam.example"}},
		{"spam.example trailing words", []string{"spam.example"}},
		{".ads.example", []string{".ads.example"}},
		{"https://Phish.Example:8443/login?next=1", []string{"phish.example"}},
		{"http://münchen.example/", []string{"xn--mnchen-3ya.example"}},
		{"ftp://files.example/x", []string{"files.example"}},
		{"https://", []string{"https://"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, plainEntries(tt.line), tt.line)
	}
}

func TestHostsEntries(t *testing.T) {
	assert.Equal(t, []string{"a.example", "b.example"}, hostsEntries("0.0.0.0 a.example b.example"))
	assert.Equal(t, []string{"c.example"}, hostsEntries("0.0.0.0 *.wild.example .dot.example c.example"))
	assert.Nil(t, hostsEntries("0.0.0.0"))
}

func TestIsValidFQDN(t *testing.T) {
	assert.True(t, isValidFQDN("moiming.page.link"))
	assert.True(t, isValidFQDN("1password.com"))
	assert.False(t, isValidFQDN("localhost"))
	assert.False(t, isValidFQDN("a..example"))
	assert.False(t, isValidFQDN("-bad.example"))
	assert.False(t, isValidFQDN(strings.Repeat("a", 64)+".example"))
	assert.False(t, isValidFQDN(strings.Repeat("abcdefgh.", 32)+"com"))
}

func TestParsePlainList(t *testing.T) {
	input := "\ufeff# spam domains\n" +
		"moiming.page.link\n" +
		"MOIMING.page.link.   # duplicate after canonicalization\n" +
		"*.spam.example\n" +
		".spam.example\n" +
		"spam.example\n" +
		"\n" +
		"not_a_domain\n" +
		".ads.example\n" +
		"*.ads.example\n" +
		"https://Phish.Example/login#section\n" +
		"https://moiming.page.link/abc\n" +
		"http://bad host/\n"

	rules, err := ParsePlainList(strings.NewReader(input), "spam.txt", logpkg.NewNoopLogger(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"exact:moiming.page.link",
		"suffix:spam.example",
		"exact:spam.example",
		"suffix:ads.example",
		"exact:phish.example",
	}, names(rules))
	for _, r := range rules {
		assert.Equal(t, "spam.txt", r.Source)
		assert.Equal(t, fixedNow, r.AddedAt)
	}
}

func TestParseHostsFile(t *testing.T) {
	input := "127.0.0.1 localhost\n" +
		"0.0.0.0 moiming.page.link www.moiming.page.link # trackers\n" +
		"0.0.0.0 *.wild.example .dot.example\n" +
		"0.0.0.0\n" +
		"# comment\n" +
		"0.0.0.0 moiming.page.link\n"

	rules, err := ParseHostsFile(strings.NewReader(input), "hosts", logpkg.NewNoopLogger(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"exact:moiming.page.link", "exact:www.moiming.page.link"}, names(rules))
}

func TestParserFor(t *testing.T) {
	_, ok := parserFor("spam.txt")
	assert.True(t, ok)
	_, ok = parserFor("ads.LIST")
	assert.True(t, ok)
	_, ok = parserFor("hosts")
	assert.True(t, ok)
	_, ok = parserFor("stevenblack.hosts")
	assert.True(t, ok)
	_, ok = parserFor("README.md")
	assert.False(t, ok)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("a.txt", "moiming.page.link\n*.spam.example\n")
	write("b.hosts", "0.0.0.0 moiming.page.link bad.example\n")
	write("notes.md", "docs.github.com\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0o700))

	rules, err := LoadDirectory(dir, logpkg.NewNoopLogger(), fixedNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"exact:moiming.page.link", "suffix:spam.example", "exact:bad.example"}, names(rules))
	assert.Equal(t, "a.txt", rules[0].Source)
	assert.Equal(t, "b.hosts", rules[2].Source)
}

func TestLoadDirectory_Missing(t *testing.T) {
	_, err := LoadDirectory(filepath.Join(t.TempDir(), "nope"), logpkg.NewNoopLogger(), fixedNow)
	assert.Error(t, err)
}
