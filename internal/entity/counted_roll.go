package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/stocktake/constants"
)

// CountedRoll is one fabric roll counted during a session.
type CountedRoll struct {
	ID         uuid.UUID `json:"id"`
	SessionID  uuid.UUID `json:"session_id"`
	SequenceNo int       `json:"sequence_no"`
	ImagePath  string    `json:"image_path"`

	// Values entered or corrected by the counter.
	Quality   *string  `json:"quality,omitempty"`
	Color     *string  `json:"color,omitempty"`
	LotNumber *string  `json:"lot_number,omitempty"`
	Meters    *float64 `json:"meters,omitempty"`

	// Values read from the label photo.
	OCRQuality           *string                    `json:"ocr_quality,omitempty"`
	OCRColor             *string                    `json:"ocr_color,omitempty"`
	OCRLotNumber         *string                    `json:"ocr_lot_number,omitempty"`
	OCRMeters            *float64                   `json:"ocr_meters,omitempty"`
	OCRQualityConfidence float64                    `json:"ocr_quality_confidence"`
	OCRColorConfidence   float64                    `json:"ocr_color_confidence"`
	OCRLotConfidence     float64                    `json:"ocr_lot_confidence"`
	OCRMetersConfidence  float64                    `json:"ocr_meters_confidence"`
	OCRConfidence        *float64                   `json:"ocr_confidence,omitempty"`
	OCRConfidenceLevel   *constants.ConfidenceLevel `json:"ocr_confidence_level,omitempty"`
	OCRStatus            constants.JobStatus        `json:"ocr_status"`
	NotLabelWarning      bool                       `json:"not_label_warning"`

	ContentHash    *string   `json:"content_hash,omitempty"`
	PerceptualHash *string   `json:"perceptual_hash,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// EffectiveQuality prefers the counter's value over the OCR reading.
func (r *CountedRoll) EffectiveQuality() string { return firstNonEmpty(r.Quality, r.OCRQuality) }

// EffectiveColor prefers the counter's value over the OCR reading.
func (r *CountedRoll) EffectiveColor() string { return firstNonEmpty(r.Color, r.OCRColor) }

// EffectiveLotNumber prefers the counter's value over the OCR reading.
func (r *CountedRoll) EffectiveLotNumber() string { return firstNonEmpty(r.LotNumber, r.OCRLotNumber) }

// EffectiveMeters prefers the counter's value over the OCR reading.
func (r *CountedRoll) EffectiveMeters() *float64 {
	if r.Meters != nil {
		return r.Meters
	}
	return r.OCRMeters
}

func firstNonEmpty(vals ...*string) string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}
