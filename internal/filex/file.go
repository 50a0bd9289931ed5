// Package filex writes recovered files to the local disk for the
// operator tooling.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (relative paths are resolved against the working
// directory) and returns its absolute path.
func EnsureDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		dir = filepath.Join(cwd, dir)
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// WriteFile stores data as dir/name, replacing an existing file. name must
// not escape dir.
func WriteFile(dir, name string, data []byte) (string, error) {
	base := filepath.Base(name)
	if base != name || base == "." || base == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	target := filepath.Join(dir, base)
	if err := os.WriteFile(target, data, 0o640); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	return target, nil
}
