package modules

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/imamik/dropship/internal/util/naming"
)

// FilesDir is the subdirectory holding a module's auxiliary files.
const FilesDir = "files"

// StageDir returns the staging directory of a module under outRoot.
func StageDir(outRoot string, d *Descriptor) string {
	return filepath.Join(outRoot, naming.ModuleDir(d.Name))
}

// Stage copies the task file of set and its auxiliary files into the
// module's staging directory and returns the staged task file path.
// Staging is idempotent and safe to run concurrently for one module: every
// file is written to a temporary name and renamed into place, so readers
// only ever see complete files.
func Stage(outRoot string, d *Descriptor, set TaskSet) (string, error) {
	dir := StageDir(outRoot, d)
	if err := os.MkdirAll(filepath.Join(dir, FilesDir), 0o750); err != nil {
		return "", fmt.Errorf("stage %s: %w", d.Name, err)
	}

	src := d.TaskFile(set)
	dst := filepath.Join(dir, filepath.Base(src))
	if err := copyFile(src, dst); err != nil {
		return "", fmt.Errorf("stage %s %s: %w", d.Name, set, err)
	}

	for _, f := range d.ExtraFiles(set) {
		srcFile := filepath.Join(d.Dir, FilesDir, f)
		if set == TaskBootstrap {
			// bootstrap templates live beside the task file
			srcFile = filepath.Join(d.Dir, f)
		}
		dstFile := filepath.Join(dir, FilesDir, f)
		if set == TaskBootstrap {
			dstFile = filepath.Join(dir, f)
		}
		if err := copyFile(srcFile, dstFile); err != nil {
			// fetched files may already sit in the staging directory
			if errors.Is(err, os.ErrNotExist) {
				if _, statErr := os.Stat(dstFile); statErr == nil {
					continue
				}
			}
			return "", fmt.Errorf("stage %s file %s: %w", d.Name, f, err)
		}
	}
	return dst, nil
}

// copyFile replaces dst with the contents of src through a temporary file
// in the destination directory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o640); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
