package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"
)

// MaxVisionImageBytes is the inline content limit of the Vision API.
const MaxVisionImageBytes = 20 * 1024 * 1024

var ErrImageTooLarge = errors.New("image exceeds vision size limit")

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// Vision uses Google Cloud Vision TEXT_DETECTION.
type Vision struct {
	client   *vision.ImageAnnotatorClient
	annotate annotateFunc
	hints    []string
	logger   *slog.Logger
}

// NewVision creates the client from explicit credentials, falling back to
// application default credentials.
func NewVision(ctx context.Context, cfg Config, logger *slog.Logger) (*Vision, error) {
	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	v := newVisionWithFunc(func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return client.BatchAnnotateImages(ctx, req)
	}, cfg.LanguageHints, logger)
	v.client = client
	return v, nil
}

func newVisionWithFunc(fn annotateFunc, hints []string, logger *slog.Logger) *Vision {
	if logger == nil {
		logger = slog.Default()
	}
	return &Vision{annotate: fn, hints: hints, logger: logger}
}

func (v *Vision) Recognize(ctx context.Context, image []byte) (Result, error) {
	if len(image) == 0 {
		return Result{}, fmt.Errorf("vision: empty image")
	}
	if len(image) > MaxVisionImageBytes {
		return Result{}, fmt.Errorf("vision: %w (%d bytes)", ErrImageTooLarge, len(image))
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: image},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_TEXT_DETECTION}},
		}},
	}
	if len(v.hints) > 0 {
		req.Requests[0].ImageContext = &visionpb.ImageContext{LanguageHints: v.hints}
	}

	resp, err := v.annotate(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("vision: annotate: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return Result{}, fmt.Errorf("vision: empty response")
	}
	r := resp.GetResponses()[0]
	if r.GetError() != nil && r.GetError().GetMessage() != "" {
		return Result{}, fmt.Errorf("vision: %s", r.GetError().GetMessage())
	}

	full := r.GetFullTextAnnotation()
	txt := Normalize(full.GetText())

	// page confidence is 0..1
	var sum float64
	var n int
	for _, p := range full.GetPages() {
		if c := p.GetConfidence(); c > 0 {
			sum += float64(c)
			n++
		}
	}
	conf := heuristicConfidence(txt)
	if n > 0 {
		conf = clampPercent(sum / float64(n) * 100)
	}

	v.logger.Debug("vision recognized image", "chars", len(txt), "confidence", conf)
	return Result{Text: txt, Confidence: conf, Engine: ProviderVision}, nil
}

func (v *Vision) Close() error {
	if v.client != nil {
		return v.client.Close()
	}
	return nil
}
