package ocr

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reLabelWord = regexp.MustCompile(`(?i)\b(quality|kalite|colou?r|renk|lot|parti|batch|metre|meters?|mtr)\b`)
	reDecimal   = regexp.MustCompile(`\b\d{1,4}[.,]\d{1,3}\b`)
	reCode      = regexp.MustCompile(`\b[A-Za-z]{1,4}-?\d{3,6}\b`)
)

// heuristicConfidence scores text by how much it looks like a roll label.
// Used when the engine reports no confidence of its own.
func heuristicConfidence(txt string) float64 {
	if strings.TrimSpace(txt) == "" {
		return 0
	}
	score := 20.0
	if reLabelWord.MatchString(txt) {
		score += 25
	}
	if reDecimal.MatchString(txt) {
		score += 15
	}
	if reCode.MatchString(txt) {
		score += 15
	}
	if len(txt) > 40 {
		score += 10
	}
	return clampPercent(score)
}

// parseTSVConfidence returns the mean word confidence (0..100) of tesseract
// TSV output. conf is the 11th of 12 columns; -1 marks non-word rows.
func parseTSVConfidence(out []byte) (float64, bool) {
	var sum, n float64
	for i, ln := range strings.Split(string(out), "\n") {
		if i == 0 || ln == "" {
			continue
		}
		cols := strings.Split(ln, "\t")
		if len(cols) < 12 {
			continue
		}
		conf := strings.TrimSpace(cols[10])
		if conf == "" || conf == "-1" {
			continue
		}
		if v, err := strconv.ParseFloat(conf, 64); err == nil && v >= 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return clampPercent(sum / n), true
}
