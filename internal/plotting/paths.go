package plotting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const maxFileStem = 128

// FileStem turns a run identifier into a file name stem: anything outside
// [A-Za-z0-9._-] becomes a single underscore.
func FileStem(id string) string {
	var b strings.Builder
	underscore := false
	for _, r := range id {
		if b.Len() >= maxFileStem {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			underscore = false
		case !underscore:
			b.WriteByte('_')
			underscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "run"
	}
	return out
}

// RunPath returns dir/<stem>.png for the run, creating dir if needed. The
// resolved path, symlinks included, must stay inside dir.
func RunPath(dir, runID string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create plot directory: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	realDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve plot directory: %w", err)
	}

	path := filepath.Join(realDir, FileStem(runID)+".png")
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		// an existing plot may be a symlink planted elsewhere
		path = resolved
	}
	rel, err := filepath.Rel(realDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("plot path %s escapes %s", path, dir)
	}
	return path, nil
}
