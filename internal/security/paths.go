// Package security keeps file paths derived from configuration or recorded
// data inside their intended directories.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideDir is returned when a path resolves outside its base directory.
var ErrOutsideDir = errors.New("path escapes base directory")

// Within returns an error unless path lies inside dir once both are cleaned
// and symlinks are resolved. A path that does not exist yet is resolved
// through its nearest existing parent, so a symlinked parent cannot be used
// to escape.
func Within(path, dir string) error {
	base, err := canonical(dir)
	if err != nil {
		return err
	}
	target, err := canonical(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrOutsideDir, path, dir)
	}
	return nil
}

// Join joins elem onto dir and checks that the result stays inside dir.
func Join(dir string, elem ...string) (string, error) {
	p := filepath.Join(append([]string{dir}, elem...)...)
	if err := Within(p, dir); err != nil {
		return "", err
	}
	return p, nil
}

// canonical returns the absolute form of p with symlinks resolved in its
// longest existing prefix.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	rest := ""
	for cur := abs; ; {
		if resolved, err := filepath.EvalSymlinks(cur); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(cur), rest)
		cur = parent
	}
}

// SanitizeFilename turns an identifier into a file name: anything other
// than ASCII letters, digits, dot, underscore or dash becomes a single
// underscore, and the result is capped at 128 bytes.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
