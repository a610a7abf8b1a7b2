// Package fs provides file system adapters for walking and hashing artifact payloads.
package fs

import (
	"io/fs"
	"iter"
	"path/filepath"
)

// Walker yields the regular files of a payload tree.
type Walker struct {
	ignores []string
}

// NewWalker creates a Walker that skips entries whose base name matches any ignore pattern.
func NewWalker(ignores ...string) *Walker {
	return &Walker{ignores: ignores}
}

// Files yields every regular file under root as a slash-separated path relative
// to root, in lexical order. A root that is itself a file yields its base name.
// Walk errors are yielded and end the iteration.
func (w *Walker) Files(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		base := root
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path == root && !d.IsDir() {
				base = filepath.Dir(root)
			}
			if path != root && w.ignored(d.Name()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(base, path)
			if err != nil {
				return err
			}
			if !yield(filepath.ToSlash(rel), nil) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil {
			yield("", err)
		}
	}
}

func (w *Walker) ignored(name string) bool {
	for _, pattern := range w.ignores {
		if matched, _ := filepath.Match(pattern, name); matched {
			return true
		}
	}
	return false
}
