package worker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/stocktake/constants"
	"github.com/joseph-ayodele/stocktake/internal/extract"
	"github.com/joseph-ayodele/stocktake/internal/hashing"
)

// Payload is the structured result stored on a completed job.
type Payload struct {
	Text           string         `json:"text"`
	Engine         string         `json:"engine"`
	OCRConfidence  float64        `json:"ocr_confidence"`
	Fields         extract.Result `json:"fields"`
	ContentHash    string         `json:"content_hash"`
	PerceptualHash string         `json:"perceptual_hash"`
	Attempt        int            `json:"attempt"`
	ProcessedAt    time.Time      `json:"processed_at"`
}

// BuildResultSchema returns the JSON-Schema every stored payload must satisfy.
func BuildResultSchema() map[string]any {
	field := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value":      map[string]any{"type": []string{"string", "null"}},
			"confidence": percentProp(),
			"rule":       map[string]any{"type": "string"},
		},
		"required": []string{"value", "confidence"},
	}
	meters := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value":      map[string]any{"type": []string{"number", "null"}, "exclusiveMinimum": extract.MinMeters, "maximum": extract.MaxMeters},
			"raw":        map[string]any{"type": "string"},
			"confidence": percentProp(),
			"rule":       map[string]any{"type": "string"},
		},
		"required": []string{"value", "confidence"},
	}
	levels := []string{string(constants.ConfidenceHigh), string(constants.ConfidenceMedium), string(constants.ConfidenceLow)}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":           map[string]any{"type": "string"},
			"engine":         map[string]any{"type": "string"},
			"ocr_confidence": percentProp(),
			"fields": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"quality":            field,
					"color":              field,
					"lot_number":         field,
					"meters":             meters,
					"fields_found":       map[string]any{"type": "integer", "minimum": 0, "maximum": 4},
					"overall_confidence": percentProp(),
					"confidence_level":   map[string]any{"type": "string", "enum": levels},
					"not_a_label":        map[string]any{"type": "boolean"},
				},
				"required": []string{"quality", "color", "lot_number", "meters", "overall_confidence", "confidence_level", "not_a_label"},
			},
			"content_hash":    map[string]any{"type": "string", "pattern": `^[0-9a-f]{64}$`},
			"perceptual_hash": map[string]any{"type": "string", "pattern": fmt.Sprintf(`^[0-9a-f]{%d}$`, hashing.FingerprintLen)},
			"attempt":         map[string]any{"type": "integer", "minimum": 1},
			"processed_at":    map[string]any{"type": "string"},
		},
		"required": []string{"text", "ocr_confidence", "fields", "content_hash", "perceptual_hash", "attempt"},
	}
}

func percentProp() map[string]any {
	return map[string]any{"type": "number", "minimum": 0.0, "maximum": 100.0}
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func resultSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(BuildResultSchema())
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("ocr_result.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("ocr_result.json")
	})
	return schema, schemaErr
}

// EncodePayload marshals p and validates it against the result schema.
func EncodePayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	if err := ValidatePayload(data); err != nil {
		return nil, err
	}
	return data, nil
}

// ValidatePayload checks raw result JSON against the result schema.
func ValidatePayload(data []byte) error {
	s, err := resultSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal result: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("result does not match schema: %w", err)
	}
	return nil
}
