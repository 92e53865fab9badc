package facematch

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxNameLength bounds identity names in runes.
const maxNameLength = 255

// CanonicalName trims and NFC-normalizes an identity name and collapses inner
// whitespace runs to one space. Names that end up empty or too long, that hold
// control characters, or that equal the Unknown label in any case are rejected
// with ErrInvalidName.
func CanonicalName(name string) (string, error) {
	name = norm.NFC.String(name)
	for _, r := range name {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return "", fmt.Errorf("%w: contains control character %U", ErrInvalidName, r)
		}
	}
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if n := len([]rune(name)); n > maxNameLength {
		return "", fmt.Errorf("%w: %d characters, at most %d allowed", ErrInvalidName, n, maxNameLength)
	}
	if strings.EqualFold(name, Unknown) {
		return "", fmt.Errorf("%w: %q is reserved for unrecognized faces", ErrInvalidName, name)
	}
	return name, nil
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName normalizes a name for loose comparison (lowercase, no diacritics, spaces for dashes).
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// MatchesQuery reports whether name contains query after loose normalization.
func MatchesQuery(name, query string) bool {
	return strings.Contains(NormalizePersonName(name), NormalizePersonName(strings.TrimSpace(query)))
}

// NameFromFilename derives an identity name from an image path:
// "photos/John_Doe.jpg" -> "John Doe".
func NameFromFilename(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	return strings.Join(strings.Fields(stem), " ")
}
