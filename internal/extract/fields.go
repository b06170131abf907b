// Package extract turns recognized label text into structured roll fields.
package extract

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/stocktake/constants"
)

const (
	// MatchConfidence is assigned to every field a rule extracted.
	MatchConfidence = 90.0

	// MinMeters and MaxMeters bound a physically plausible roll length.
	MinMeters = 0.0
	MaxMeters = 300.0

	minLabelChars  = 10
	minLabelFields = 2
)

// Field is one extracted string value.
type Field struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Rule       string  `json:"rule,omitempty"`
}

// Found reports whether the field holds a value.
func (f Field) Found() bool { return f.Value != nil }

// MetersField is the extracted roll length.
type MetersField struct {
	Value      *float64 `json:"value"`
	Raw        string   `json:"raw,omitempty"`
	Confidence float64  `json:"confidence"`
	Rule       string   `json:"rule,omitempty"`
}

// Found reports whether a plausible length was read.
func (f MetersField) Found() bool { return f.Value != nil }

// Result is the outcome of running the engine over one label text.
type Result struct {
	Quality           Field                     `json:"quality"`
	Color             Field                     `json:"color"`
	LotNumber         Field                     `json:"lot_number"`
	Meters            MetersField               `json:"meters"`
	FieldsFound       int                       `json:"fields_found"`
	OverallConfidence float64                   `json:"overall_confidence"`
	Level             constants.ConfidenceLevel `json:"confidence_level"`
	NotALabel         bool                      `json:"not_a_label"`
}

// Engine holds the ordered rule cascade for every field.
type Engine struct {
	quality []Rule
	color   []Rule
	lot     []Rule
	meters  []Rule
}

// NewEngine builds an engine with the default rules.
func NewEngine() *Engine {
	return &Engine{
		quality: QualityRules,
		color:   ColorRules,
		lot:     LotRules,
		meters:  MetersRules,
	}
}

// Extract runs every field cascade over text. ocrConfidence (0..100) is the
// engine's own score and is only used when no field could be read.
func (e *Engine) Extract(text string, ocrConfidence float64) Result {
	upper := Normalize(text)

	res := Result{
		Quality:   stringField(e.quality, upper),
		Color:     stringField(e.color, upper),
		LotNumber: stringField(e.lot, upper),
		Meters:    metersField(e.meters, upper),
	}

	var sum float64
	for _, c := range []float64{res.Quality.Confidence, res.Color.Confidence, res.LotNumber.Confidence, res.Meters.Confidence} {
		if c > 0 {
			sum += c
			res.FieldsFound++
		}
	}
	if res.FieldsFound > 0 {
		res.OverallConfidence = round1(sum / float64(res.FieldsFound))
	} else {
		res.OverallConfidence = round1(clamp(ocrConfidence, 0, 100))
	}
	res.Level = constants.LevelFor(res.OverallConfidence)

	// a real label may miss one field, so this is a warning only
	res.NotALabel = utf8.RuneCountInString(strings.TrimSpace(text)) < minLabelChars ||
		res.FieldsFound < minLabelFields
	return res
}

// Extract runs the default engine.
func Extract(text string, ocrConfidence float64) Result {
	return defaultEngine.Extract(text, ocrConfidence)
}

var defaultEngine = NewEngine()

func stringField(rules []Rule, text string) Field {
	v, rule, ok := firstMatch(rules, text)
	if !ok {
		return Field{}
	}
	return Field{Value: &v, Confidence: MatchConfidence, Rule: rule}
}

// metersField keeps first-match-wins semantics: an implausible reading from
// the winning rule leaves the field empty rather than trying later rules.
func metersField(rules []Rule, text string) MetersField {
	raw, rule, ok := firstMatch(rules, text)
	if !ok {
		return MetersField{}
	}
	m, ok := ParseMeters(raw)
	if !ok {
		return MetersField{Raw: raw, Rule: rule}
	}
	return MetersField{Value: &m, Raw: raw, Confidence: MatchConfidence, Rule: rule}
}

// ParseMeters reads a length that may use a decimal comma and checks it is
// within (MinMeters, MaxMeters].
func ParseMeters(raw string) (float64, bool) {
	s := strings.Replace(strings.TrimSpace(raw), ",", ".", 1)
	m, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(m) {
		return 0, false
	}
	if m <= MinMeters || m > MaxMeters {
		return 0, false
	}
	return m, true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
