// Package library builds the organised on-disk destination for a design's
// files and moves staging content into place.
package library

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// DefaultPathTemplate is the template used when no operator override is
// configured.
const DefaultPathTemplate = "{designer}/{channel}/{title}"

// MaxConflictSuffix bounds the " (2)", " (3)", ... conflict-resolution
// search before giving up.
const MaxConflictSuffix = 50

// reservedChars are the path-unsafe characters substituted with "_" during
// sanitisation.
const reservedChars = `/\:*?"<>|`

// sanitiser is a transform.Transformer that maps every reserved character
// and control rune to an underscore, leaving the rest of Unicode untouched.
var sanitiser = runes.Map(func(r rune) rune {
	if strings.ContainsRune(reservedChars, r) || unicode.IsControl(r) {
		return '_'
	}
	return r
})

// SanitisePathComponent replaces reserved characters with "_" and trims
// surrounding whitespace, the rule applied to every template variable
// before it is joined into a path.
func SanitisePathComponent(s string) string {
	out, _, err := transform.String(sanitiser, s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(out)
}

// Vars holds the values substituted into a library path template.
type Vars struct {
	Designer string
	Channel  string
	Title    string
	Date     time.Time
}

// BuildRelativePath renders template against vars, sanitising each
// substituted component independently so a designer name containing a
// slash cannot escape its path segment.
func BuildRelativePath(template string, vars Vars) string {
	if template == "" {
		template = DefaultPathTemplate
	}
	replacer := strings.NewReplacer(
		"{designer}", SanitisePathComponent(orDefault(vars.Designer, "Unknown")),
		"{channel}", SanitisePathComponent(vars.Channel),
		"{title}", SanitisePathComponent(orDefault(vars.Title, "Untitled")),
		"{date}", vars.Date.Format("2006-01-02"),
	)
	rendered := replacer.Replace(template)
	segments := strings.Split(filepath.ToSlash(rendered), "/")
	clean := segments[:0]
	for _, seg := range segments {
		if seg = strings.TrimSpace(seg); seg != "" {
			clean = append(clean, seg)
		}
	}
	return filepath.Join(clean...)
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

// ResolveConflict returns a directory path under root that does not yet
// exist, appending " (2)", " (3)", ... to the final path segment of
// relativeDir when the unsuffixed candidate is already taken.
func ResolveConflict(root, relativeDir string) (string, error) {
	candidate := filepath.Join(root, relativeDir)
	if _, err := os.Stat(candidate); os.IsNotExist(err) {
		return relativeDir, nil
	}
	parent, base := filepath.Split(relativeDir)
	for n := 2; n <= MaxConflictSuffix; n++ {
		suffixed := filepath.Join(parent, fmt.Sprintf("%s (%d)", base, n))
		if _, err := os.Stat(filepath.Join(root, suffixed)); os.IsNotExist(err) {
			return suffixed, nil
		}
	}
	return "", fmt.Errorf("library: no free conflict suffix under %q after %d attempts", relativeDir, MaxConflictSuffix)
}

// MoveFile relocates src to dst, using rename where the two paths share a
// device and falling back to copy+delete across devices.
// dst's parent directory is created if necessary.
func MoveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("library: create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyThenDelete(src, dst); err != nil {
		return fmt.Errorf("library: move %s to %s: %w", src, dst, err)
	}
	return nil
}

func copyThenDelete(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".partial"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Remove(src)
}

// RemoveEmptyDirs walks up from dir toward stopAt (exclusive), removing
// directories left empty after a design's staging files were moved out.
func RemoveEmptyDirs(dir, stopAt string) {
	stopAt = filepath.Clean(stopAt)
	for cur := filepath.Clean(dir); cur != stopAt && strings.HasPrefix(cur, stopAt); {
		entries, err := os.ReadDir(cur)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(cur); err != nil {
			return
		}
		cur = filepath.Dir(cur)
	}
}
