// Package textfold normalizes human-entered names so that "DÉJEUNER",
// "dejeuner" and " Déjeuner " compare equal. Period lookups in the slot
// catalog and in batch cancellation both go through here.
package textfold

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold strips diacritics, case-folds and trims s. Inner whitespace runs are
// collapsed to a single space.
func Fold(s string) string {
	// transformers carry state; build them per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = cases.Fold().String(out)
	return strings.Join(strings.Fields(out), " ")
}

// Equal reports whether a and b are the same name once folded.
func Equal(a, b string) bool { return Fold(a) == Fold(b) }

// Contains reports whether the folded needle occurs in the folded haystack.
// An empty needle never matches.
func Contains(haystack, needle string) bool {
	n := Fold(needle)
	if n == "" {
		return false
	}
	return strings.Contains(Fold(haystack), n)
}
