package util

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// PathExists() is a wrapper function that simplifies checking
// if a file or directory already exists at the provided path.
func PathExists(path string) (fs.FileInfo, bool) {
	fi, err := os.Stat(path)
	return fi, !os.IsNotExist(err)
}

// SplitPathForViper() is an utility function to split a path into 3 parts:
// - directory
// - filename
// - extension
// The intent was to break a path into a format that's more easily consumable
// by spf13/viper's API. See the "Load()" function in internal/config for
// more details.
func SplitPathForViper(path string) (string, string, string) {
	filename := filepath.Base(path)
	ext := filepath.Ext(filename)
	return filepath.Dir(path), strings.TrimSuffix(filename, ext), strings.TrimPrefix(ext, ".")
}

// EnsureParentDir creates the directory that will hold path.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if _, exists := PathExists(dir); exists {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
