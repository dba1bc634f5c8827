package gallery

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// removeDiacritics strips diacritical marks (e.g., "Jiří" -> "Jiri").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeKey turns a display name into a stable identity key: no
// diacritics, lowercase, spaces and dashes collapsed to underscores.
// Gallery, cache file and attendance rows all use the normalized key so
// results stay reproducible regardless of how the name was typed.
func NormalizeKey(name string) string {
	name = removeDiacritics(name)
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

// IdentityFromFilename recovers the identity key from an enrollment image
// path. Files are named <identity>_<YYYYMMDD>_<HHMMSS>.jpg; trailing
// numeric segments are the capture timestamp, not part of the name.
func IdentityFromFilename(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(stem, "_")

	// Drop up to two trailing all-digit segments (date and time).
	for dropped := 0; dropped < 2 && len(parts) > 1 && isDigits(parts[len(parts)-1]); dropped++ {
		parts = parts[:len(parts)-1]
	}
	return NormalizeKey(strings.Join(parts, "_"))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
