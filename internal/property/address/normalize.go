// Package address derives the canonical matching key for a free-form address.
//
// The key is a pure function of the input: diacritics are stripped, case and
// punctuation are dropped, and common street-type and unit designators are
// folded to one spelling, so "12 Élm Street, Apt. 4" and "12 elm st apt 4"
// resolve to the same home.
package address

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"homeledger/internal/property/models"
)

// Normalizer maps an address to its matching key.
type Normalizer interface {
	Normalize(parts models.AddressParts) (string, error)
}

// NormalizerFunc adapts a function to Normalizer.
type NormalizerFunc func(parts models.AddressParts) (string, error)

func (f NormalizerFunc) Normalize(parts models.AddressParts) (string, error) { return f(parts) }

// Default is the built-in normalizer.
var Default Normalizer = NormalizerFunc(Key)

var abbreviations = map[string]string{
	"street": "st", "str": "st",
	"avenue": "ave", "av": "ave",
	"road": "rd",
	"drive": "dr",
	"boulevard": "blvd",
	"lane": "ln",
	"court": "ct",
	"place": "pl",
	"terrace": "ter",
	"highway": "hwy",
	"parkway": "pkwy",
	"circle": "cir",
	"square": "sq",
	"apartment": "apt", "unit": "apt", "#": "apt",
	"suite": "ste",
	"north": "n", "south": "s", "east": "e", "west": "w",
	"northeast": "ne", "northwest": "nw", "southeast": "se", "southwest": "sw",
}

// Key validates parts and returns the canonical matching key.
func Key(parts models.AddressParts) (string, error) {
	if err := parts.Validate(); err != nil {
		return "", err
	}
	fields := []string{
		foldWords(parts.Street),
		foldWords(parts.Unit),
		foldWords(parts.City),
		foldWords(parts.Region),
		foldPostal(parts.PostalCode),
		foldWords(parts.Country),
	}
	return strings.Join(fields, "|"), nil
}

func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func foldWords(s string) string {
	s = strings.ToLower(stripMarks(s))
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r != '#' && !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := words[:0]
	for _, w := range words {
		// "#4" splits into the designator and the number.
		if strings.HasPrefix(w, "#") && len(w) > 1 {
			out = append(out, "apt", w[1:])
			continue
		}
		if short, ok := abbreviations[w]; ok {
			w = short
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

func foldPostal(s string) string {
	s = strings.ToLower(stripMarks(s))
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
