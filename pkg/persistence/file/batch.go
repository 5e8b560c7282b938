package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type stagedFile struct {
	path     string
	tmp      string
	previous []byte
	existed  bool
}

// batch stages documents as temporary files and only replaces the targets
// once every document was written. A failed batch leaves the targets as they
// were.
type batch struct {
	files []*stagedFile
}

func (b *batch) stage(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	f := &stagedFile{path: path, tmp: path + ".tmp"}

	previous, err := os.ReadFile(path) // #nosec G304 -- path is built from validated identifiers
	switch {
	case err == nil:
		f.previous, f.existed = previous, true
	case !os.IsNotExist(err):
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := os.WriteFile(f.tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	b.files = append(b.files, f)

	return nil
}

// abort removes every staged temporary file.
func (b *batch) abort() {
	for _, f := range b.files {
		_ = os.Remove(f.tmp)
	}

	b.files = nil
}

// apply renames the staged files over their targets in staging order. When a
// rename fails, the targets already replaced get their previous content back.
func (b *batch) apply() error {
	for i, f := range b.files {
		if err := os.Rename(f.tmp, f.path); err != nil {
			err = fmt.Errorf("failed to replace %s: %w", f.path, err)

			for _, done := range b.files[:i] {
				err = errors.Join(err, done.restore())
			}

			for _, pending := range b.files[i:] {
				_ = os.Remove(pending.tmp)
			}

			b.files = nil

			return err
		}
	}

	b.files = nil

	return nil
}

func (f *stagedFile) restore() error {
	if !f.existed {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to roll back %s: %w", f.path, err)
		}

		return nil
	}

	if err := os.WriteFile(f.path, f.previous, 0600); err != nil {
		return fmt.Errorf("failed to roll back %s: %w", f.path, err)
	}

	return nil
}
