package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/stocktake/constants"
)

func TestExtract_FullLabel(t *testing.T) {
	text := "QUALITY: AB-1234\nCOLOR: NAVY\nLOT: ABC-1234\nMETERS: 120,5"

	res := Extract(text, 55)

	require.True(t, res.Quality.Found())
	require.True(t, res.Color.Found())
	require.True(t, res.LotNumber.Found())
	require.True(t, res.Meters.Found())
	assert.Equal(t, "AB-1234", *res.Quality.Value)
	assert.Equal(t, "NAVY", *res.Color.Value)
	assert.Equal(t, "ABC-1234", *res.LotNumber.Value)
	assert.InDelta(t, 120.5, *res.Meters.Value, 1e-9)

	assert.Equal(t, "quality-label", res.Quality.Rule)
	assert.Equal(t, "meters-label", res.Meters.Rule)
	assert.Equal(t, 4, res.FieldsFound)
	assert.Equal(t, MatchConfidence, res.OverallConfidence)
	assert.Equal(t, constants.ConfidenceHigh, res.Level)
	assert.False(t, res.NotALabel)
}

func TestExtract_LotOnly(t *testing.T) {
	res := Extract("LOT: ABC-1234", 80)

	require.True(t, res.LotNumber.Found())
	assert.Equal(t, "ABC-1234", *res.LotNumber.Value)
	assert.Equal(t, MatchConfidence, res.LotNumber.Confidence)
	assert.False(t, res.Quality.Found())
	assert.False(t, res.Meters.Found())
	assert.Equal(t, 1, res.FieldsFound)
	assert.True(t, res.NotALabel, "a single field is not enough to call it a label")
}

func TestExtract_MetersDecimalComma(t *testing.T) {
	res := Extract("120,5 M", 0)

	require.True(t, res.Meters.Found())
	assert.InDelta(t, 120.5, *res.Meters.Value, 1e-9)
	assert.Equal(t, "meters-unit", res.Meters.Rule)
}

func TestExtract_MetersOutOfRange(t *testing.T) {
	res := Extract("METRAJ: 450", 0)

	assert.False(t, res.Meters.Found())
	assert.Zero(t, res.Meters.Confidence)
	assert.Equal(t, "450", res.Meters.Raw)
}

func TestExtract_MetersCascadeStopsOnImplausibleValue(t *testing.T) {
	// the labelled reading wins even though a later rule would find 12
	res := Extract("METRAJ: 450\n12 M", 0)

	assert.False(t, res.Meters.Found())
	assert.Equal(t, "meters-label", res.Meters.Rule)
}

func TestExtract_NormalizesInput(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "lower case", text: "lot: abc-99", want: "ABC-99"},
		{name: "full width digits", text: "LOT: １２３４５", want: "12345"},
		{name: "batch label", text: "Batch No: 7781-B", want: "7781-B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Extract(tt.text, 0)
			require.True(t, res.LotNumber.Found())
			assert.Equal(t, tt.want, *res.LotNumber.Value)
		})
	}
}

func TestExtract_NoFieldsFallsBackToOCRConfidence(t *testing.T) {
	tests := []struct {
		name      string
		ocrConf   float64
		wantConf  float64
		wantLevel constants.ConfidenceLevel
	}{
		{name: "low", ocrConf: 42.34, wantConf: 42.3, wantLevel: constants.ConfidenceLow},
		{name: "medium", ocrConf: 70, wantConf: 70, wantLevel: constants.ConfidenceMedium},
		{name: "high", ocrConf: 91, wantConf: 91, wantLevel: constants.ConfidenceHigh},
		{name: "clamped", ocrConf: 140, wantConf: 100, wantLevel: constants.ConfidenceHigh},
		{name: "negative", ocrConf: -3, wantConf: 0, wantLevel: constants.ConfidenceLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Extract("hello world foo", tt.ocrConf)
			assert.Zero(t, res.FieldsFound)
			assert.Equal(t, tt.wantConf, res.OverallConfidence)
			assert.Equal(t, tt.wantLevel, res.Level)
			assert.True(t, res.NotALabel)
		})
	}
}

func TestExtract_ShortTextIsNotALabel(t *testing.T) {
	res := Extract("RED 5 M", 90)

	assert.Equal(t, 2, res.FieldsFound)
	assert.True(t, res.NotALabel)
}

func TestExtract_TwoFieldsIsALabel(t *testing.T) {
	res := Extract("COLOR: ECRU   LOT: 99812", 0)

	assert.Equal(t, 2, res.FieldsFound)
	assert.False(t, res.NotALabel)
	assert.Equal(t, "ECRU", *res.Color.Value)
	assert.Equal(t, "99812", *res.LotNumber.Value)
}

func TestRules(t *testing.T) {
	tests := []struct {
		name     string
		rules    []Rule
		text     string
		want     string
		wantRule string
	}{
		{name: "quality turkish label", rules: QualityRules, text: Normalize("kalite: K-100"), want: "K-100", wantRule: "quality-label"},
		{name: "quality article no", rules: QualityRules, text: "ART NO: 5521/A", want: "5521/A", wantRule: "quality-label"},
		{name: "quality bare code", rules: QualityRules, text: "AB1234\nSOMETHING", want: "AB1234", wantRule: "quality-code"},
		{name: "color label", rules: ColorRules, text: "RENK: 0412", want: "0412", wantRule: "color-label"},
		{name: "color name", rules: ColorRules, text: "100% COTTON BLACK", want: "BLACK", wantRule: "color-name"},
		{name: "lot prefix", rules: LotRules, text: "L-12345", want: "12345", wantRule: "lot-prefix"},
		{name: "meters label", rules: MetersRules, text: "MTR: 85.25", want: "85.25", wantRule: "meters-label"},
		{name: "meters unit", rules: MetersRules, text: "NET 64 MT", want: "64", wantRule: "meters-unit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rule, ok := firstMatch(tt.rules, tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantRule, rule)
		})
	}
}

func TestRules_NoMatch(t *testing.T) {
	for name, rules := range map[string][]Rule{
		"quality": QualityRules,
		"color":   ColorRules,
		"lot":     LotRules,
		"meters":  MetersRules,
	} {
		_, _, ok := firstMatch(rules, "NOTHING USEFUL HERE")
		assert.False(t, ok, name)
	}
}

func TestParseMeters(t *testing.T) {
	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{raw: "120.5", want: 120.5, wantOK: true},
		{raw: "120,5", want: 120.5, wantOK: true},
		{raw: " 42 ", want: 42, wantOK: true},
		{raw: "300", want: 300, wantOK: true},
		{raw: "300.1"},
		{raw: "0"},
		{raw: "-5"},
		{raw: "abc"},
		{raw: ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseMeters(tt.raw)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.want, got, 1e-9)
			}
		})
	}
}
