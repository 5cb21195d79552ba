package ingest

import (
	"regexp"
	"strings"
)

// CleanOptions selects the cleaning steps applied by Clean.
type CleanOptions struct {
	FixEncoding         bool `yaml:"fix_encoding"`
	MergeHyphenation    bool `yaml:"merge_hyphenation"`
	RemoveCitations     bool `yaml:"remove_citations"`
	RemoveHeaders       bool `yaml:"remove_headers"`
	RemovePageNumbers   bool `yaml:"remove_page_numbers"`
	NormalizeWhitespace bool `yaml:"normalize_whitespace"`
}

// DefaultCleanOptions enables every step.
func DefaultCleanOptions() CleanOptions {
	return CleanOptions{
		FixEncoding:         true,
		MergeHyphenation:    true,
		RemoveCitations:     true,
		RemoveHeaders:       true,
		RemovePageNumbers:   true,
		NormalizeWhitespace: true,
	}
}

var (
	hyphenBreakPattern  = regexp.MustCompile(`(\w+)-\s+(\w+)`)
	numericCitePattern  = regexp.MustCompile(`\[\d+(?:\s*[,-]\s*\d+)*\]`)
	authorCitePattern   = regexp.MustCompile(`\(\w+(?: et al\.)?, \d{4}\)`)
	pageNumberPattern   = regexp.MustCompile(`^\s*\d+\s*$`)
	pageHeaderPattern   = regexp.MustCompile(`^\s*Page \d+(?:\s+of\s+\d+)?\s*$`)
	confidentialPattern = regexp.MustCompile(`(?i)^\s*confidential\s*$`)
	horizontalSpace     = regexp.MustCompile(`[ \t\f\v]+`)
	excessiveLineBreaks = regexp.MustCompile(`\n{3,}`)
)

var encodingReplacer = strings.NewReplacer(
	"\u2013", "-",
	"\u2014", "-",
	"\u2018", "'",
	"\u2019", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u2026", "...",
	"\u00a0", " ",
	"\r\n", "\n",
)

// Clean applies the selected steps in a fixed order: encoding, hyphenation,
// citations, headers, page numbers, whitespace. Line-based steps run before
// whitespace normalization so they still see line boundaries.
func Clean(text string, opts CleanOptions) string {
	if opts.FixEncoding {
		text = FixEncoding(text)
	}
	if opts.MergeHyphenation {
		text = MergeHyphenation(text)
	}
	if opts.RemoveCitations {
		text = RemoveCitations(text)
	}
	if opts.RemoveHeaders {
		text = RemoveHeaders(text)
	}
	if opts.RemovePageNumbers {
		text = RemovePageNumbers(text)
	}
	if opts.NormalizeWhitespace {
		text = NormalizeWhitespace(text)
	}
	return strings.TrimSpace(text)
}

// FixEncoding replaces typographic punctuation with ASCII equivalents.
func FixEncoding(text string) string {
	return encodingReplacer.Replace(text)
}

// MergeHyphenation joins words split by a hyphen and a line break, e.g.
// "retri-\nval" becomes "retrieval".
func MergeHyphenation(text string) string {
	return hyphenBreakPattern.ReplaceAllString(text, "$1$2")
}

// RemoveCitations drops numeric ("[3]", "[1, 2]") and author-year
// ("(Smith, 2020)") citations.
func RemoveCitations(text string) string {
	text = numericCitePattern.ReplaceAllString(text, "")
	return authorCitePattern.ReplaceAllString(text, "")
}

// RemoveHeaders drops lines that are only a "Page N" marker or the word
// "Confidential".
func RemoveHeaders(text string) string {
	return dropLines(text, func(line string) bool {
		return pageHeaderPattern.MatchString(line) || confidentialPattern.MatchString(line)
	})
}

// RemovePageNumbers drops lines that contain only digits.
func RemovePageNumbers(text string) string {
	return dropLines(text, pageNumberPattern.MatchString)
}

// NormalizeWhitespace collapses runs of spaces and tabs, trims every line,
// and keeps at most one blank line between paragraphs.
func NormalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	return excessiveLineBreaks.ReplaceAllString(text, "\n\n")
}

func dropLines(text string, drop func(string) bool) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if !drop(line) {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
