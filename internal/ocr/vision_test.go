package ocr

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"
)

func TestVision_Recognize(t *testing.T) {
	var got *visionpb.BatchAnnotateImagesRequest
	v := newVisionWithFunc(func(_ context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		got = req
		return &visionpb.BatchAnnotateImagesResponse{
			Responses: []*visionpb.AnnotateImageResponse{{
				FullTextAnnotation: &visionpb.TextAnnotation{
					Text:  "LOT 4411\nMTR 55",
					Pages: []*visionpb.Page{{Confidence: 0.5}, {Confidence: 1}},
				},
			}},
		}, nil
	}, []string{"tr", "en"}, nil)

	res, err := v.Recognize(context.Background(), []byte("png"))
	require.NoError(t, err)

	assert.Equal(t, "LOT 4411\nMTR 55", res.Text)
	assert.InDelta(t, 75, res.Confidence, 1e-6)
	assert.Equal(t, ProviderVision, res.Engine)

	require.Len(t, got.GetRequests(), 1)
	assert.Equal(t, []byte("png"), got.GetRequests()[0].GetImage().GetContent())
	assert.Equal(t, visionpb.Feature_TEXT_DETECTION, got.GetRequests()[0].GetFeatures()[0].GetType())
	assert.Equal(t, []string{"tr", "en"}, got.GetRequests()[0].GetImageContext().GetLanguageHints())
}

func TestVision_Errors(t *testing.T) {
	tests := []struct {
		name    string
		resp    *visionpb.BatchAnnotateImagesResponse
		err     error
		wantErr string
	}{
		{name: "transport", err: errors.New("unavailable"), wantErr: "unavailable"},
		{name: "empty", resp: &visionpb.BatchAnnotateImagesResponse{}, wantErr: "empty response"},
		{
			name: "api error",
			resp: &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{{
				Error: &status.Status{Code: 3, Message: "bad image data"},
			}}},
			wantErr: "bad image data",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVisionWithFunc(func(context.Context, *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
				return tt.resp, tt.err
			}, nil, nil)
			_, err := v.Recognize(context.Background(), []byte("png"))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestVision_NoTextIsNotAnError(t *testing.T) {
	v := newVisionWithFunc(func(context.Context, *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{{}}}, nil
	}, nil, nil)

	res, err := v.Recognize(context.Background(), []byte("png"))
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.Zero(t, res.Confidence)
}

func TestVision_TooLarge(t *testing.T) {
	v := newVisionWithFunc(nil, nil, nil)
	_, err := v.Recognize(context.Background(), make([]byte, MaxVisionImageBytes+1))
	assert.ErrorIs(t, err, ErrImageTooLarge)
}
