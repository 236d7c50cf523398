package artifacts

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that filePath stays inside dir once
// cleaned and made absolute. Symlinks are resolved along the longest
// existing prefix of both paths, so a link inside dir pointing elsewhere
// is rejected even when the target file does not exist yet.
func ValidatePathWithinDirectory(filePath, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}

	rel, err := filepath.Rel(resolveExisting(absDir), resolveExisting(absPath))
	if err != nil {
		return fmt.Errorf("path is outside output directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, dir)
	}
	return nil
}

// resolveExisting evaluates symlinks in the longest existing prefix of p
// and re-attaches the remainder.
func resolveExisting(p string) string {
	check := p
	for {
		if resolved, err := filepath.EvalSymlinks(check); err == nil {
			rest, _ := filepath.Rel(check, p)
			return filepath.Join(resolved, rest)
		}
		parent := filepath.Dir(check)
		if parent == check {
			return p
		}
		check = parent
	}
}

// SanitizeName makes a safe file-name stem from an arbitrary string such
// as a run ID or a user-chosen prefix. Characters other than ASCII
// letters, digits, dot, underscore and dash collapse to one underscore.
func SanitizeName(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "tracks"
	}
	return out
}
