package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// administrative prefixes stripped from the start of a region name, checked in order.
var regionPrefixes = []string{
	"thanh pho ",
	"tinh ",
	"tp. ",
	"tp.",
	"tp ",
	"province ",
	"city ",
}

// NormalizeRegionName folds a user-facing region name into a comparison key. "Thành phố Hà Nội",
// "TP. Hà Nội" and "Hà Nội" all normalize to "ha noi". The result is stable under repeated
// application.
func NormalizeRegionName(name string) string {
	folded := strings.ToLower(strings.TrimSpace(name))
	if folded == "" {
		return ""
	}
	folded = StripDiacritics(folded)
	folded = strings.ReplaceAll(folded, "đ", "d")
	folded = strings.Join(strings.Fields(folded), " ")

	for {
		stripped := false
		for _, prefix := range regionPrefixes {
			if strings.HasPrefix(folded, prefix) && len(folded) > len(prefix) {
				folded = strings.TrimSpace(strings.TrimPrefix(folded, prefix))
				stripped = true
				break
			}
		}
		if !stripped {
			break
		}
	}
	return folded
}

// StripDiacritics removes combining marks after canonical decomposition.
func StripDiacritics(value string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, value)
	if err != nil {
		return value
	}
	return result
}

// CanonicalKey converts a catalog label into the lower snake case form used as a food key.
func CanonicalKey(label string) string {
	fields := strings.FieldsFunc(strings.ToLower(strings.TrimSpace(label)), func(r rune) bool {
		return unicode.IsSpace(r) || r == '-'
	})
	return strings.Join(fields, "_")
}

// ContainsRegion reports whether name is present in regions after normalization.
func ContainsRegion(regions []string, name string) bool {
	target := NormalizeRegionName(name)
	if target == "" {
		return false
	}
	for _, region := range regions {
		if NormalizeRegionName(region) == target {
			return true
		}
	}
	return false
}
