package extract

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds compatibility forms (full-width digits, ligatures) and
// upper-cases the recognized text so rules only deal with one spelling.
func Normalize(text string) string {
	// a Caser is stateful, so one per call
	return cases.Upper(language.Und).String(norm.NFKC.String(text))
}
