package optimizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// OutputDir returns the folder optimized copies of sourceDir are written to.
func OutputDir(sourceDir, outputDirName string) string {
	if outputDirName == "" {
		outputDirName = "optimizadas"
	}
	return filepath.Join(sourceDir, outputDirName)
}

// IsCandidate reports whether a file name passes the extension filter and no exclude pattern matches it.
// A bare ".png" has no stem and is not treated as an image.
func IsCandidate(name string, extensions, exclude []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || len(ext) == len(name) {
		return false
	}

	supported := false
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			supported = true
			break
		}
	}
	if !supported {
		return false
	}

	for _, pattern := range exclude {
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return false
		}
	}
	return true
}

// discoverCandidates lists the direct children of dir that are candidate files.
// Subdirectories, including the output directory, are never descended into.
// os.ReadDir returns entries sorted by name, which keeps reporting deterministic.
func discoverCandidates(dir string, extensions, exclude []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read source dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !IsCandidate(entry.Name(), extensions, exclude) {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	return files, nil
}

// dirExists returns true if the given path exists and is a directory.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
