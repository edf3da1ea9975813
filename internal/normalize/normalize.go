// Package normalize turns raw contact fields into the canonical keys the
// candidate generator blocks on and the signal extractor compares. All
// functions are pure; an empty result means the field cannot produce a key.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips diacritics and lowercases, so "Renée" and "renee"
// collapse to the same key.
var foldTransformer = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Map(unicode.ToLower),
	norm.NFC,
)

func fold(value string) string {
	out, _, err := transform.String(foldTransformer, value)
	if err != nil {
		return strings.ToLower(value)
	}
	return out
}

// NameKey produces the blocking key for a contact name: diacritics stripped,
// case folded, punctuation removed, whitespace collapsed to single spaces.
func NameKey(parts ...string) string {
	var fields []string
	for _, part := range parts {
		folded := fold(part)
		var b strings.Builder
		for _, r := range folded {
			switch {
			case unicode.IsLetter(r) || unicode.IsDigit(r):
				b.WriteRune(r)
			case unicode.IsSpace(r) || r == '-' || r == '\'' || r == '.':
				b.WriteByte(' ')
			}
		}
		fields = append(fields, strings.Fields(b.String())...)
	}
	return strings.Join(fields, " ")
}

// minPhoneDigits is the fewest digits a value can carry and still be treated
// as a phone number rather than noise.
const minPhoneDigits = 7

// PhoneKey reduces a phone value to bare digits, dropping a leading country
// code 1 from eleven-digit numbers. Values with too few digits produce no key.
func PhoneKey(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) < minPhoneDigits {
		return ""
	}
	return digits
}

// EmailKey lowercases an email address and strips a +tag suffix from the
// local part, so "Pat+news@Example.com" and "pat@example.com" match.
func EmailKey(value string) string {
	email := strings.ToLower(strings.TrimSpace(value))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	if local == "" {
		return ""
	}
	return local + "@" + domain
}

// EmailDomain returns the lowercased domain of an email address, or "" when
// the value is not a usable address.
func EmailDomain(value string) string {
	key := EmailKey(value)
	if key == "" {
		return ""
	}
	return key[strings.LastIndex(key, "@")+1:]
}

// EmailLocalPart returns the normalized local part of an email address.
func EmailLocalPart(value string) string {
	key := EmailKey(value)
	if key == "" {
		return ""
	}
	return key[:strings.LastIndex(key, "@")]
}

// AddressKey produces a comparable key for a postal address: folded line,
// city, and postal code joined with pipes. Empty components are kept as
// empty segments so partially filled addresses only match like for like.
func AddressKey(line1, city, postal string) string {
	l := NameKey(line1)
	c := NameKey(city)
	p := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, postal)
	if l == "" && c == "" && p == "" {
		return ""
	}
	return l + "|" + c + "|" + p
}
