// Package resolver turns user directory selectors into existing directories.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/spf13/afero"
)

// Selector combines the three ways of naming directories.
type Selector struct {
	Dirs     []string // literal paths, relative to the root unless absolute
	Globs    []string // shell patterns matched against child directory names
	Patterns []string // regular expressions searched in child directory names
}

// Empty reports whether no selector was given.
func (s Selector) Empty() bool {
	return len(s.Dirs) == 0 && len(s.Globs) == 0 && len(s.Patterns) == 0
}

// Resolver finds directories selected by a Selector. Globs and patterns
// only see the immediate children of root.
type Resolver struct {
	fs     afero.Fs
	root   string
	dedupe bool
}

// New creates a Resolver. An empty root means the working directory.
// With dedupe set, directories selected more than once are returned once.
func New(fs afero.Fs, root string, dedupe bool) *Resolver {
	if root == "" {
		root = "."
	}

	return &Resolver{fs: fs, root: root, dedupe: dedupe}
}

// Resolve returns absolute directory paths in literal, regex, glob order.
// Symlinked directories are returned as their target path.
// Literal entries that do not exist or are not directories are skipped.
// Only invalid patterns produce an error; an empty result does not.
func (r *Resolver) Resolve(sel Selector) ([]string, error) {
	regexes := make([]*regexp.Regexp, 0, len(sel.Patterns))
	for _, p := range sel.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid regex %q: %w", p, err)
		}
		regexes = append(regexes, re)
	}
	for _, g := range sel.Globs {
		if _, err := filepath.Match(g, ""); err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", g, err)
		}
	}

	var found []string

	for _, d := range sel.Dirs {
		path := d
		if !filepath.IsAbs(path) {
			path = filepath.Join(r.root, path)
		}
		if ok, _ := afero.IsDir(r.fs, path); ok {
			found = append(found, path)
		}
	}

	var children []os.FileInfo
	if len(regexes) > 0 || len(sel.Globs) > 0 {
		entries, err := afero.ReadDir(r.fs, r.root)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", r.root, err)
		}
		for _, e := range entries {
			if r.isDir(e) {
				children = append(children, e)
			}
		}
	}

	for _, re := range regexes {
		for _, c := range children {
			if re.MatchString(c.Name()) {
				found = append(found, filepath.Join(r.root, c.Name()))
			}
		}
	}
	for _, g := range sel.Globs {
		for _, c := range children {
			if ok, _ := filepath.Match(g, c.Name()); ok {
				found = append(found, filepath.Join(r.root, c.Name()))
			}
		}
	}

	return r.finalize(found), nil
}

// isDir follows symlinked children so that linked directories are found.
func (r *Resolver) isDir(info os.FileInfo) bool {
	if info.IsDir() {
		return true
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return false
	}
	ok, _ := afero.IsDir(r.fs, filepath.Join(r.root, info.Name()))

	return ok
}

func (r *Resolver) finalize(found []string) []string {
	out := make([]string, 0, len(found))
	seen := make(map[string]bool, len(found))

	for _, p := range found {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = filepath.Clean(p)
		}
		// Stages walk the returned directories without following a
		// symlinked root, so links are resolved here.
		dir := r.canonical(abs)
		if r.dedupe {
			if seen[dir] {
				continue
			}
			seen[dir] = true
		}
		out = append(out, dir)
	}

	return out
}

// canonical resolves symlinks when the resolver runs on the OS filesystem.
func (r *Resolver) canonical(abs string) string {
	if _, ok := r.fs.(*afero.OsFs); ok {
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			return real
		}
	}

	return abs
}
