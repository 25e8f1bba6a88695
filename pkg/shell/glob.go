package shell

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

// Glob expands shell patterns (including "**") relative to dir. The returned paths are relative
// to dir, sorted and free of duplicates. Patterns that don't match anything are dropped.
func Glob(dir string, patterns []string) ([]string, error) {
	readDir := func(path string) ([]os.FileInfo, error) {
		if path == "" {
			path = "."
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}

		return ioutil.ReadDir(path)
	}

	cfg := expand.Config{
		Env:      expand.ListEnviron("PWD=" + dir),
		ReadDir:  readDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	seen := make(map[string]bool)
	result := []string{}

	for _, pattern := range patterns {
		words := make([]*syntax.Word, 0)
		err := parser.Words(strings.NewReader(filepath.ToSlash(pattern)), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse pattern %s", pattern)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to resolve pattern %s", pattern)
		}

		for _, match := range matches {
			rel := filepath.FromSlash(match)
			if filepath.IsAbs(match) {
				rel, err = filepath.Rel(dir, match)
				if err != nil || strings.HasPrefix(rel, "..") {
					continue
				}
			}

			// a pattern without matches is returned verbatim
			if _, err := os.Lstat(filepath.Join(dir, rel)); err != nil {
				continue
			}

			if !seen[rel] {
				seen[rel] = true
				result = append(result, rel)
			}
		}
	}

	sort.Strings(result)
	return result, nil
}
