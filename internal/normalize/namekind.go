package normalize

import "strings"

// orgKeywords flags names that read as organizations rather than people.
// Matched on whole normalized tokens so "Mills" does not trip on "llc".
var orgKeywords = map[string]struct{}{
	"llc":          {},
	"inc":          {},
	"incorporated": {},
	"corp":         {},
	"corporation":  {},
	"ltd":          {},
	"limited":      {},
	"co":           {},
	"company":      {},
	"foundation":   {},
	"fund":         {},
	"trust":        {},
	"association":  {},
	"church":       {},
	"university":   {},
	"college":      {},
	"school":       {},
	"institute":    {},
	"society":      {},
	"group":        {},
	"partners":     {},
	"holdings":     {},
}

// LooksLikeOrganization reports whether a name contains an organization
// keyword. Used to classify untagged imports; an explicit name kind on the
// record always wins over this guess.
func LooksLikeOrganization(name string) bool {
	for _, token := range strings.Fields(NameKey(name)) {
		if _, ok := orgKeywords[token]; ok {
			return true
		}
	}
	return false
}
