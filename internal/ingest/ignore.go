package ingest

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// IgnoreFileName lists corpus paths to skip, in gitignore syntax. A root
// .gitignore is read as well.
const IgnoreFileName = ".hybridragignore"

var ignoreFiles = []string{".gitignore", IgnoreFileName}

// Ignore matches slash-separated paths, relative to the corpus root,
// against gitignore-style rules. Later rules win, so "!keep.txt" re-includes
// a file excluded by an earlier "*.txt".
type Ignore struct {
	rules []ignoreRule
}

type ignoreRule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
}

// LoadIgnore reads the ignore files at the root of dir. Missing files are
// not an error.
func LoadIgnore(dir string) (*Ignore, error) {
	ig := &Ignore{}
	for _, name := range ignoreFiles {
		if err := ig.addFile(filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}
	return ig, nil
}

// ParseIgnore builds an Ignore from pattern lines.
func ParseIgnore(lines ...string) *Ignore {
	ig := &Ignore{}
	for _, l := range lines {
		ig.add(l)
	}
	return ig
}

func (ig *Ignore) addFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ig.add(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file %s: %w", path, err)
	}
	return nil
}

func (ig *Ignore) add(line string) {
	p := strings.TrimSpace(line)
	if p == "" || strings.HasPrefix(p, "#") {
		return
	}

	var r ignoreRule
	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}
	if strings.HasPrefix(p, "/") {
		r.anchored = true
		p = strings.TrimPrefix(p, "/")
	}
	// "docs/draft" is relative to the root, "**/draft" is not.
	if strings.Contains(p, "/") && !strings.HasPrefix(p, "**/") {
		r.anchored = true
	}
	if p == "" {
		return
	}

	re, err := regexp.Compile("^" + globToRegex(p) + "$")
	if err != nil {
		return
	}
	r.re = re
	ig.rules = append(ig.rules, r)
}

// Match reports whether rel is ignored. A nil Ignore matches nothing.
func (ig *Ignore) Match(rel string, isDir bool) bool {
	if ig == nil {
		return false
	}
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	ignored := false
	for _, r := range ig.rules {
		if r.match(rel, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

func (r ignoreRule) match(rel string, isDir bool) bool {
	parts := strings.Split(rel, "/")

	if r.anchored {
		if r.re.MatchString(rel) {
			return !r.dirOnly || isDir
		}
		// A matching parent directory ignores everything below it.
		for i := 1; i < len(parts); i++ {
			if r.re.MatchString(strings.Join(parts[:i], "/")) {
				return true
			}
		}
		return false
	}

	for i, part := range parts {
		if !r.re.MatchString(part) {
			continue
		}
		if r.dirOnly && i == len(parts)-1 {
			return isDir
		}
		return true
	}
	return r.re.MatchString(rel)
}

// globToRegex translates *, ** and ? into a regular expression. Character
// classes pass through unchanged.
func globToRegex(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch c {
		case '*':
			if strings.HasPrefix(glob[i:], "**/") {
				b.WriteString("(?:.*/)?")
				i += 2
			} else if strings.HasPrefix(glob[i:], "**") {
				b.WriteString(".*")
				i++
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(glob[i:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			b.WriteString(glob[i : i+end+1])
			i += end
		case '\\':
			if i+1 < len(glob) {
				i++
				b.WriteString(regexp.QuoteMeta(string(glob[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
