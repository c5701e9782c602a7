// Package normalize provides the text normalization alias uniqueness
// depends on: aliases are unique per (alias_text, user_id) once
// alias_text is NFC-normalized and case-folded.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// AliasKey normalizes alias text to NFC form and folds case, so "Kay Media",
// "KAY MEDIA", and a precomposed-vs-decomposed Unicode variant all collide
// on the same storage key.
func AliasKey(s string) string {
	return strings.ToLower(norm.NFC.String(strings.TrimSpace(s)))
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives the "<slug>" half of an entity_id ("<type>:<slug>") from a
// canonical name.
func Slug(canonicalName string) string {
	s := AliasKey(canonicalName)
	s = nonSlugChars.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
