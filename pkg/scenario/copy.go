package scenario

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// ignorePatterns are never copied into a run workspace. Directory matches
// prune the whole subtree.
var ignorePatterns = []string{
	"**/.git",
	"**/__pycache__",
	"**/node_modules",
	"**/.venv",
	"**/*.pyc",
}

// CopyProject copies the fixture tree at src into dst, preserving file modes
// and skipping ignorePatterns. The source is never modified.
func CopyProject(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "fixture project not found at %s", src)
	}
	if !info.IsDir() {
		return errors.Errorf("fixture project %s is not a directory", src)
	}

	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, info.Mode().Perm())
		}

		if ignored(filepath.ToSlash(rel)) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		destPath := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(destPath, info.Mode().Perm())
		}
		return copyFile(path, destPath, info.Mode().Perm())
	})
}

func ignored(slashPath string) bool {
	for _, pattern := range ignorePatterns {
		if ok, _ := doublestar.Match(pattern, slashPath); ok {
			return true
		}
	}
	return false
}

func copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	_, err = io.Copy(dstFile, srcFile)
	return err
}

// HashTree computes a sha256 digest over the relative paths and contents of
// every regular file under dir, in walk order. Two trees with the same files
// hash the same; any added, removed, renamed, or edited file changes the digest.
func HashTree(dir string) (string, error) {
	h := sha256.New()
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		io.WriteString(h, filepath.ToSlash(rel))
		h.Write([]byte{0})

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(h, f); err != nil {
			return err
		}
		h.Write([]byte{0})
		return nil
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to hash %s", dir)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
