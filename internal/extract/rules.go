package extract

import (
	"regexp"
	"strings"
)

// Rule is one pattern in a field's cascade. Match returns the extracted value
// and whether the rule fired; rules never look at each other.
type Rule struct {
	Name  string
	Match func(text string) (string, bool)
}

// PatternRule fires on the first match of expr and yields its first capture
// group, or the whole match when the pattern has no groups.
func PatternRule(name, expr string) Rule {
	re := regexp.MustCompile(expr)
	return Rule{
		Name: name,
		Match: func(text string) (string, bool) {
			m := re.FindStringSubmatch(text)
			if m == nil {
				return "", false
			}
			v := m[0]
			if len(m) > 1 {
				v = m[1]
			}
			v = strings.ToUpper(strings.TrimSpace(v))
			return v, v != ""
		},
	}
}

// firstMatch runs rules in order; the first non-empty value wins.
func firstMatch(rules []Rule, text string) (string, string, bool) {
	for _, r := range rules {
		if v, ok := r.Match(text); ok {
			return v, r.Name, true
		}
	}
	return "", "", false
}

// labelled value separator: optional "NO"/"NR", then one of ":#-" and spaces.
const sep = `\.?\s*(?:(?:NO|NR)\b\.?)?\s*[:#\-]?\s*`

// Rules are ordered most specific first: "LABEL: value" forms before bare
// positional heuristics.
var (
	QualityRules = []Rule{
		PatternRule("quality-label", `\b(?:QUALITY|KALİTE|KALITE|QUAL|ARTICLE|ART)\b`+sep+`([A-Z0-9][A-Z0-9\-/.]*[A-Z0-9])`),
		PatternRule("quality-code", `(?m)^\s*([A-Z]{1,4}-?\d{3,6})\b`),
	}

	ColorRules = []Rule{
		PatternRule("color-label", `\b(?:COLOUR|COLOR|RENK|CLR|COL)\b`+sep+`([A-Z0-9][A-Z0-9\-/]*)`),
		PatternRule("color-name", `\b(BLACK|WHITE|NAVY|RED|BLUE|GREEN|GREY|GRAY|BEIGE|ECRU|SİYAH|SIYAH|BEYAZ|LACİVERT|LACIVERT|KIRMIZI|MAVİ|MAVI|YEŞİL|YESIL|GRİ|GRI|BEJ)\b`),
	}

	LotRules = []Rule{
		PatternRule("lot-label", `\b(?:LOT|PARTİ|PARTI|BATCH)\b`+sep+`([A-Z0-9][A-Z0-9\-/]*[A-Z0-9])`),
		PatternRule("lot-prefix", `\bL[-:]\s*(\d{3,10})\b`),
	}

	MetersRules = []Rule{
		PatternRule("meters-label", `\b(?:METRAJ|METRE|METERS|METER|MTR|MT|LENGTH|UZUNLUK)\b\.?\s*[:#\-]?\s*(\d{1,4}(?:[.,]\d{1,3})?)`),
		PatternRule("meters-unit", `\b(\d{1,4}(?:[.,]\d{1,3})?)\s*(?:METRE|METERS|METER|MTR|MT|M)\b`),
	}
)
