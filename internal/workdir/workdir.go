// Package workdir resolves the directory holding the lists database, so
// commands work from anywhere below an initialized workspace.
package workdir

import (
	"os"
	"path/filepath"
)

// Marker is the per-workspace data directory name.
const Marker = ".lists"

// ResolveBaseDir walks up from dir looking for a Marker directory and returns
// the first directory containing one. LISTS_DIR, when set, wins. Without a
// match the original dir is returned unchanged.
func ResolveBaseDir(dir string) string {
	if v := os.Getenv("LISTS_DIR"); v != "" {
		return v
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	for cur := abs; ; {
		if fi, err := os.Stat(filepath.Join(cur, Marker)); err == nil && fi.IsDir() {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir
		}
		cur = parent
	}
}
