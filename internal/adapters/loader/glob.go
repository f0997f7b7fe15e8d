package loader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// Expand resolves file arguments into a de-duplicated list of loadable files,
// in argument order. Each pattern may be a file, a directory (searched
// recursively) or a doublestar glob such as "docs/**/*.md". Files found
// through a directory or glob are kept only if m supports them; files named
// explicitly are always kept so that the caller reports why they fail.
func (m *MultiLoader) Expand(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, pattern := range patterns {
		info, err := os.Stat(pattern)
		switch {
		case err == nil && !info.IsDir():
			add(pattern)
			continue
		case err == nil && info.IsDir():
			pattern = filepath.Join(pattern, "**", "*")
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
		for _, match := range matches {
			if m.Supports(match) {
				add(match)
			}
		}
	}
	return out, nil
}
