package storage

import (
	"os"
	"strings"
)

// ValidName reports whether name is usable as a file or directory name: a
// single path segment that cannot step outside its parent.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, os.PathSeparator) {
		return false
	}
	return !strings.ContainsRune(name, 0)
}
